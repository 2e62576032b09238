package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mymmrac/telego/telegoapi"

	"github.com/nextlevelbuilder/tgmirror/internal/relay"
)

func TestWrapSendErrorStructuredRetryAfter(t *testing.T) {
	apiErr := &telegoapi.Error{
		ErrorCode:   429,
		Description: "Too Many Requests",
		Parameters:  &telegoapi.ResponseParameters{RetryAfter: 7},
	}

	err := wrapSendError(fmt.Errorf("sendMessage: %w", apiErr))
	var rateErr *relay.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("got %T (%v), want RateLimitError", err, err)
	}
	if rateErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", rateErr.RetryAfter)
	}
}

func TestWrapSendErrorTextFallback(t *testing.T) {
	err := wrapSendError(errors.New("telegram: Too Many Requests: retry after 12"))
	var rateErr *relay.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("got %T (%v), want RateLimitError", err, err)
	}
	if rateErr.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %s, want 12s", rateErr.RetryAfter)
	}
}

func TestWrapSendErrorPassthrough(t *testing.T) {
	orig := errors.New("Forbidden: bot was kicked from the channel chat")
	if got := wrapSendError(orig); got != orig {
		t.Errorf("got %v, want original error untouched", got)
	}
	if got := wrapSendError(nil); got != nil {
		t.Errorf("wrapSendError(nil) = %v, want nil", got)
	}
}
