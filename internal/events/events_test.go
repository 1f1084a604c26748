package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	acks      chan amqp.Confirmation
	ack       bool
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.published = append(f.published, msg)
	if f.acks != nil {
		f.acks <- amqp.Confirmation{DeliveryTag: uint64(len(f.published)), Ack: f.ack}
	}
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newFake(ack bool) (*fakeChannel, *AMQP) {
	ch := &fakeChannel{acks: make(chan amqp.Confirmation, 1), ack: ack}
	return ch, newAMQP(ch, ch.acks, "backend", zap.NewNop())
}

func TestPublish_Acked(t *testing.T) {
	ch, p := newFake(true)

	err := p.Publish(context.Background(), "order.paid", map[string]string{"orderId": "5"})

	require.NoError(t, err)
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "pos_events/order.paid", ch.keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "order.paid", msg.Type)
	assert.Equal(t, "backend", msg.Headers["x-source"])
	assert.NotEmpty(t, msg.MessageId)

	var body map[string]string
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, "5", body["orderId"])
}

func TestPublish_Nack(t *testing.T) {
	_, p := newFake(false)

	err := p.Publish(context.Background(), "order.created", struct{}{})

	assert.ErrorIs(t, err, ErrNack)
}

func TestPublish_ChannelError(t *testing.T) {
	ch, p := newFake(true)
	ch.err = errors.New("channel closed")

	err := p.Publish(context.Background(), "order.created", struct{}{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestPublish_ContextDoneBeforeConfirm(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQP(ch, make(chan amqp.Confirmation), "backend", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := p.Publish(ctx, "order.created", struct{}{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublish_UnmarshalablePayload(t *testing.T) {
	ch, p := newFake(true)

	err := p.Publish(context.Background(), "order.created", make(chan int))

	require.Error(t, err)
	assert.Empty(t, ch.published)
}

func TestClose(t *testing.T) {
	ch, p := newFake(true)
	p.Close()
	assert.True(t, ch.closed)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), "order.created", nil))
}
