package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbackwallet/rollbackctl/internal/events"
)

func TestFromContext_Default(t *testing.T) {
	assert.NotNil(t, events.FromContext(context.Background()))
}

func TestWithLogger(t *testing.T) {
	logger := events.NewNopLogger()
	ctx := events.WithLogger(context.Background(), logger)
	assert.Same(t, logger, events.FromContext(ctx))
}

func TestContextTags(t *testing.T) {
	const wallet = "0x52908400098527886E0F7030069857D2E4169EE7"

	tests := []struct {
		name  string
		tag   func(context.Context) context.Context
		get   func(context.Context) string
		field string
		value string
	}{
		{
			name:  "request id",
			tag:   func(ctx context.Context) context.Context { return events.WithRequestID(ctx, "req-123") },
			get:   events.GetRequestID,
			field: "request_id",
			value: "req-123",
		},
		{
			name:  "wallet",
			tag:   func(ctx context.Context) context.Context { return events.WithWallet(ctx, wallet) },
			get:   events.GetWallet,
			field: "wallet",
			value: wallet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			ctx := events.WithLogger(context.Background(), events.NewTestLogger(events.InfoLevel, "json", &buf))

			assert.Empty(t, tt.get(ctx))

			ctx = tt.tag(ctx)
			assert.Equal(t, tt.value, tt.get(ctx))
			assert.Equal(t, map[string]interface{}{tt.field: tt.value}, events.Tags(ctx))

			events.FromContext(ctx).Info("tagged")
			assert.Contains(t, buf.String(), `"`+tt.field+`":"`+tt.value+`"`)
		})
	}
}

func TestTags_Combined(t *testing.T) {
	ctx := events.WithWallet(events.WithRequestID(context.Background(), "req-1"), "0xabc")

	tags := events.Tags(ctx)
	require.Len(t, tags, 2)
	assert.Equal(t, "req-1", tags["request_id"])
	assert.Equal(t, "0xabc", tags["wallet"])

	assert.Empty(t, events.Tags(context.Background()))
}

func TestSetDefault(t *testing.T) {
	previous := events.FromContext(context.Background())
	defer events.SetDefault(previous)

	custom := events.NewNopLogger()
	events.SetDefault(custom)

	assert.Same(t, custom, events.FromContext(context.Background()))
}
