// Package validate checks request bodies against their validate tags.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	// Report fields by their JSON name, the one clients actually send.
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = val.RegisterValidation("push_endpoint", pushEndpoint)
	return val
}

// pushEndpoint accepts an https push-service URL or an SNS endpoint ARN.
func pushEndpoint(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.HasPrefix(s, "arn:") {
		return strings.Contains(s, ":sns:") && strings.Contains(s, ":endpoint/")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

// Struct returns nil or one error naming every failed field.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
