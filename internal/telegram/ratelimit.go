package telegram

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/mymmrac/telego/telegoapi"

	"github.com/nextlevelbuilder/tgmirror/internal/relay"
)

var retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

// wrapSendError classifies a Bot API failure. Flood-wait responses become
// relay.RateLimitError carrying the mandated wait, so the send queue can
// back off and requeue; everything else passes through as a permanent
// delivery error.
func wrapSendError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *telegoapi.Error
	if errors.As(err, &apiErr) && apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
		return &relay.RateLimitError{RetryAfter: time.Duration(apiErr.Parameters.RetryAfter) * time.Second}
	}

	// Some flood-wait responses omit structured parameters; fall back to
	// the error text.
	if m := retryAfterRe.FindStringSubmatch(err.Error()); m != nil {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil && secs > 0 {
			return &relay.RateLimitError{RetryAfter: time.Duration(secs) * time.Second}
		}
	}

	return err
}
