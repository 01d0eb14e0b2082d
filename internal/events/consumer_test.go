package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConsumer() *Consumer {
	return &Consumer{handlers: make(map[string]Handler), log: zap.NewNop()}
}

func TestConsumerDispatch(t *testing.T) {
	c := newTestConsumer()

	var got []Event
	c.Handle(EventTypeNotificationEmail, func(ctx context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	ctx := WithCorrelationID(context.Background(), "order-1")
	body, err := NewEvent(ctx, EventTypeNotificationEmail, map[string]interface{}{"email": "a@b.co"}).Encode()
	require.NoError(t, err)

	assert.Equal(t, ack, c.process(context.Background(), EventTypeNotificationEmail, body))
	require.Len(t, got, 1)
	assert.Equal(t, "order-1", got[0].CorrelationID)
	assert.Equal(t, "a@b.co", got[0].Payload["email"])
}

func TestConsumerOutcomes(t *testing.T) {
	c := newTestConsumer()
	c.Handle(EventTypeNotificationShipping, func(ctx context.Context, e Event) error {
		if e.Payload["mode"] == "fail" {
			return errors.New("carrier timeout")
		}
		return nil
	})

	encode := func(mode string) []byte {
		body, err := NewEvent(context.Background(), EventTypeNotificationShipping, map[string]interface{}{"mode": mode}).Encode()
		require.NoError(t, err)
		return body
	}

	tests := []struct {
		name string
		key  string
		body []byte
		want outcome
	}{
		{"handled", EventTypeNotificationShipping, encode("ok"), ack},
		{"handler failure drops", EventTypeNotificationShipping, encode("fail"), drop},
		{"unknown routing key drops", "order.cancelled", encode("ok"), drop},
		{"malformed body drops", EventTypeNotificationShipping, []byte("{not json"), drop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.process(context.Background(), tt.key, tt.body))
		})
	}
}

func TestConsumerCloseWithoutConnection(t *testing.T) {
	assert.NoError(t, newTestConsumer().Close())
}
