package client

import (
	"errors"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Options configures the listen command.
type Options struct {
	BaseURL      string        `long:"base-url" env:"NOTIFY_BASE_URL" default:"http://localhost:3000" description:"API base URL"`
	Token        string        `long:"token" env:"NOTIFY_TOKEN" description:"Bearer token for the API and live channel"`
	UserID       string        `long:"user-id" env:"NOTIFY_USER_ID" description:"User id declared in the auth frame"`
	DedupeWindow time.Duration `long:"dedupe-window" env:"NOTIFY_DEDUPE_WINDOW" description:"Suppress repeated alerts for the same event id within this window (0 disables)"`
	PushReceipts bool          `long:"push-receipts" env:"NOTIFY_PUSH_RECEIPTS" description:"Read push payloads as JSON lines from stdin"`
	NoBell       bool          `long:"no-bell" env:"NOTIFY_NO_BELL" description:"Do not ring the terminal bell on alerts"`
	Debug        bool          `long:"debug" env:"NOTIFY_DEBUG" description:"Enable verbose debug output"`
}

func ParseOptions(args []string) (Options, error) {
	_ = godotenv.Load()
	opts := Options{}
	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func ValidateRequired(opts Options) error {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return errors.New("base URL is required")
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return errors.New("user id is required")
	}
	if opts.DedupeWindow < 0 {
		return errors.New("dedupe window must not be negative")
	}
	return nil
}
