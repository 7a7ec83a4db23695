package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presentos/pkg/trace"
)

type fakeStore struct {
	events map[int64]*Event
	sent   []int64
	failed []int64
}

func (f *fakeStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (f *fakeStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(f.events)) && len(out) < limit; id++ {
		if e := f.events[id]; e != nil && e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	f.failed = append(f.failed, id)
	return nil
}

type published struct {
	key       string
	requestID string
}

type fakePublisher struct {
	failKey string
	got     []published
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if routingKey == p.failKey {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, published{key: routingKey, requestID: trace.FromContext(ctx)})
	return nil
}

func event(id int64, key, status string, payload map[string]any) *Event {
	raw, _ := json.Marshal(payload)
	return &Event{ID: id, RoutingKey: key, Status: status, Payload: raw}
}

func TestReplayEvent_RestoresRequestID(t *testing.T) {
	store := &fakeStore{events: map[int64]*Event{
		1: event(1, "notification.created", StatusFailed, map[string]any{"notification_id": "n1", "request_id": "req-9"}),
	}}
	pub := &fakePublisher{}
	svc := newReplayService(store, pub, zap.NewNop())

	require.NoError(t, svc.ReplayEvent(context.Background(), 1))
	assert.Equal(t, []published{{key: "notification.created", requestID: "req-9"}}, pub.got)
	assert.Equal(t, []int64{1}, store.sent)
}

func TestReplayEvent_NotFound(t *testing.T) {
	svc := newReplayService(&fakeStore{events: map[int64]*Event{}}, &fakePublisher{}, zap.NewNop())
	err := svc.ReplayEvent(context.Background(), 42)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestReplayFailedEvents_ContinuesPastErrors(t *testing.T) {
	store := &fakeStore{events: map[int64]*Event{
		1: event(1, "notification.created", StatusFailed, map[string]any{"notification_id": "n1"}),
		2: event(2, "broken.key", StatusFailed, map[string]any{}),
		3: event(3, "notification.created", StatusSent, map[string]any{"notification_id": "n3"}),
		4: event(4, "notification.created", StatusFailed, map[string]any{"notification_id": "n4"}),
	}}
	pub := &fakePublisher{failKey: "broken.key"}
	svc := newReplayService(store, pub, zap.NewNop())

	n, err := svc.ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 4}, store.sent)
	assert.Equal(t, []int64{2}, store.failed)
}
