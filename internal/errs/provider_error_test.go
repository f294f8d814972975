package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemporary_UnwrapsWrappedError(t *testing.T) {
	base := &ConnectorError{Source: "binance", Code: CodeNetworkError, Temporary: true}
	wrapped := fmt.Errorf("dial failed: %w", base)
	assert.True(t, Temporary(wrapped))
	assert.False(t, RateLimited(wrapped))
}

func TestRateLimited_TrueForRateLimitCode(t *testing.T) {
	err := &ConnectorError{Source: "okx", Code: CodeRateLimit, RateLimited: true, Temporary: true}
	assert.True(t, RateLimited(err))
}

func TestTemporary_FalseForPlainError(t *testing.T) {
	assert.False(t, Temporary(fmt.Errorf("boom")))
}
