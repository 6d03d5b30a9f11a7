package submission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/tunequeue/tunequeue/internal/nats"
	"github.com/tunequeue/tunequeue/internal/worker"
)

func inbound(user, resource string) inats.InboundRequest {
	return inats.InboundRequest{ID: "m-1", UserID: user, Resource: resource, ReplyTo: "chat-" + user, ReceivedAt: time.Now()}
}

func TestConsumer_AcceptedNotice(t *testing.T) {
	svc, _ := newTestService(t, 5, 5, nil)
	sent := &notices{}
	c := NewConsumer(svc, sent, nil)

	assert.True(t, c.handle(context.Background(), inbound("alice", "a")))
	assert.True(t, c.handle(context.Background(), inbound("alice", "b")))

	require.Len(t, sent.sent, 2)
	assert.Equal(t, worker.NoticeAccepted, sent.sent[1].Kind)
	assert.Contains(t, sent.sent[1].Text, "position 2")
	assert.Equal(t, 2, svc.Queue().Len())
}

func TestConsumer_ThrottledIsSilent(t *testing.T) {
	svc, _ := newTestService(t, 5, 5, denyAll{})
	sent := &notices{}
	c := NewConsumer(svc, sent, nil)

	assert.True(t, c.handle(context.Background(), inbound("alice", "a")))
	assert.Empty(t, sent.kinds())
}

func TestConsumer_DeniedAndFullNotices(t *testing.T) {
	svc, qs := newTestService(t, 1, 1, nil)
	require.True(t, qs.Increment(context.Background(), "alice"))
	sent := &notices{}
	c := NewConsumer(svc, sent, nil)

	assert.True(t, c.handle(context.Background(), inbound("alice", "a")))
	assert.True(t, c.handle(context.Background(), inbound("bob", "b")))
	assert.True(t, c.handle(context.Background(), inbound("carol", "c")))

	assert.Equal(t, []worker.NoticeKind{worker.NoticeDenied, worker.NoticeAccepted, worker.NoticeFailed}, sent.kinds())
	assert.Contains(t, sent.sent[0].Text, "1/1")
}

func TestConsumer_ShuttingDownLeavesRequest(t *testing.T) {
	svc, _ := newTestService(t, 5, 5, nil)
	svc.Queue().Close()
	sent := &notices{}
	c := NewConsumer(svc, sent, nil)

	assert.False(t, c.handle(context.Background(), inbound("alice", "a")))
	assert.Empty(t, sent.kinds())
}
