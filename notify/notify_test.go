package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func sample() leave.Notification {
	return leave.Notification{
		ID:         "n1",
		EmployeeID: "mgr",
		Title:      "New Leave Application",
		Message:    "Alice Doe has applied for Annual Leave from 2025-03-10 to 2025-03-14",
		Category:   leave.CategoryLeave,
		Link:       "/leaves/applications/a1",
		CreatedAt:  time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaSink_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w, "", zap.NewNop())

	require.NoError(t, sink.Notify(context.Background(), sample()))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, DefaultTopic, msg.Topic)
	assert.Equal(t, "mgr", string(msg.Key))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "n1", ev.ID)
	assert.Equal(t, "leave", ev.Category)
	assert.Equal(t, "/leaves/applications/a1", ev.Link)
	assert.Equal(t, EventType, string(msg.Headers[0].Value))
}

func TestKafkaSink_WriterErrorIsReturned(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	sink := NewKafkaSink(w, "hr.leave", zap.NewNop())

	err := sink.Notify(context.Background(), sample())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "hr.leave")
	assert.Contains(t, err.Error(), "broker down")
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &fakeWriter{}
	down := &fakeWriter{err: errors.New("broker down")}
	var inbox []leave.Notification
	m := Multi{
		leave.NotifierFunc(func(_ context.Context, n leave.Notification) error {
			inbox = append(inbox, n)
			return nil
		}),
		NewKafkaSink(down, "", zap.NewNop()),
		nil,
		NewKafkaSink(ok, "", zap.NewNop()),
	}

	err := m.Notify(context.Background(), sample())

	require.Error(t, err)
	assert.Len(t, inbox, 1)
	assert.Len(t, ok.msgs, 1)
}
