package correlation

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdoptKeepsInboundID(t *testing.T) {
	ctx, id := Adopt(context.Background(), "  upstream-42 ")
	assert.Equal(t, "upstream-42", id)
	assert.Equal(t, "upstream-42", FromContext(ctx))
}

func TestAdoptKeepsContextIDWhenNoInbound(t *testing.T) {
	ctx := WithID(context.Background(), "abc")
	ctx, id := Adopt(ctx, "")
	assert.Equal(t, "abc", id)
	assert.Equal(t, "abc", FromContext(ctx))
}

func TestAdoptGeneratesULID(t *testing.T) {
	for _, inbound := range []string{"", "has space", "tab\tid", strings.Repeat("x", maxInboundLength+1)} {
		ctx, id := Adopt(context.Background(), inbound)
		_, err := ulid.ParseStrict(id)
		require.NoError(t, err, inbound)
		assert.Equal(t, id, FromContext(ctx))
	}
}

func TestWithIDIgnoresEmpty(t *testing.T) {
	ctx := WithID(context.Background(), "")
	assert.Empty(t, FromContext(ctx))
}
