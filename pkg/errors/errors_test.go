package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCrawlerErrorMessage(t *testing.T) {
	err := NewNetwork("ppomppu", "request failed", stderrors.New("connection reset"))
	assert.Equal(t, "[network] ppomppu: request failed - connection reset", err.Error())

	withPage := err.WithPage(3)
	assert.Equal(t, "[network] ppomppu page 3: request failed - connection reset", withPage.Error())
	assert.Equal(t, 0, err.Page, "WithPage must not modify the receiver")

	plain := NewValidation("clien", "missing title")
	assert.Equal(t, "[validation] clien: missing title", plain.Error())
}

func TestPermanence(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"network", NewNetwork("a", "x", nil), false},
		{"persistence", NewPersistence("a", "x", nil), false},
		{"rate limit", NewRateLimit("a", time.Minute), true},
		{"blocked", NewBlocked("a", time.Minute), true},
		{"auth", NewAuth("a", "forbidden"), true},
		{"not found", NewNotFound("a", "gone"), true},
		{"parsing", NewParsing("a", "bad html", nil), true},
		{"cancelled", NewCancelled("a", nil), true},
		{"plain error", stderrors.New("boom"), false},
		{"wrapped permanent", fmt.Errorf("page 2: %w", NewAuth("a", "x")), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.permanent, IsPermanent(tt.err))
		})
	}
}

func TestPermanentMarksForeignErrors(t *testing.T) {
	base := stderrors.New("account suspended")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Permanent(nil))

	transient := NewNetwork("a", "timeout", nil)
	marked := Permanent(transient)
	assert.True(t, IsPermanent(marked))
	assert.False(t, transient.Permanent)
	assert.Equal(t, ErrorTypeNetwork, TypeOf(marked))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewNetwork("a", "x", nil).IsRetryable())
	assert.False(t, NewRateLimit("a", time.Second).IsRetryable())
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("x")))
}
