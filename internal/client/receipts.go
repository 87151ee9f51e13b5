package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/notify-relay/internal/domain"
)

// ReadPushReceipts decodes one push payload per line from r and hands each to
// handle. Lines that are not valid payloads are skipped.
func ReadPushReceipts(ctx context.Context, r io.Reader, handle func(domain.PushPayload) bool, logger *slog.Logger) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var p domain.PushPayload
		if err := json.Unmarshal(line, &p); err != nil {
			logger.Debug("malformed push receipt ignored", "err", err)
			continue
		}
		handle(p)
	}
	return sc.Err()
}
