package apperr

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetKindThroughWrapping(t *testing.T) {
	base := Malformed("unexpected payload", nil).WithOp("search")
	wrapped := fmt.Errorf("query %q: %w", "lisboa", base)

	assert.Equal(t, KindMalformed, GetKind(wrapped))
	assert.True(t, Is(wrapped, KindMalformed))
	assert.Equal(t, KindUnknown, GetKind(context.Canceled))
}

func TestTransientKinds(t *testing.T) {
	for _, k := range []Kind{KindTimeout, KindRateLimited, KindMalformed, KindUnreachable} {
		assert.True(t, k.Transient(), k.String())
	}
	for _, k := range []Kind{KindUnknown, KindStructural, KindFatal, KindValidation, KindInternal} {
		assert.False(t, k.Transient(), k.String())
	}
}

func TestErrorMessage(t *testing.T) {
	err := Timeout("upstream timed out", context.DeadlineExceeded).WithOp("search")
	assert.Equal(t, "search: upstream timed out: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "rate_limited", KindRateLimited.String())
}
