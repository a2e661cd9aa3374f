package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	// Notifier with nil Redis should return nil error (fail-open/noop)
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), 1, "test payload"))
	assert.NoError(t, n.PublishBroadcast(context.Background(), "test payload"))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "notifications:user:1"},
		{100, "notifications:user:100"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
	}
}

func TestNotifier_PatternSubscriberSeesUserAndBroadcastChannels(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type message struct {
		channel string
		payload string
	}
	received := make(chan message, 4)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		received <- message{channel, payload}
	}))

	// PSubscribe is asynchronous; retry until the subscription is live.
	var first message
	assert.Eventually(t, func() bool {
		require.NoError(t, n.PublishUser(context.Background(), 7, "direct"))
		select {
		case first = <-received:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "notifications:user:7", first.channel)
	assert.Equal(t, "direct", first.payload)

	require.NoError(t, n.PublishBroadcast(context.Background(), "wide"))
	assert.Eventually(t, func() bool {
		select {
		case msg := <-received:
			return msg.channel == broadcastChannel && msg.payload == "wide"
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_SubscriberSurvivesPanickingHandler(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled int32
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, payload string) {
		if payload == "boom" {
			panic("handler bug")
		}
		atomic.AddInt32(&handled, 1)
	}))

	assert.Eventually(t, func() bool {
		require.NoError(t, n.PublishUser(context.Background(), 1, "boom"))
		require.NoError(t, n.PublishUser(context.Background(), 1, "fine"))
		return atomic.LoadInt32(&handled) >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestNotifier_StartPatternSubscriber_StopsOnCancel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	payloads := make(chan string, 2)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, payload string) {
		atomic.AddInt32(&received, 1)
		payloads <- payload
	}))

	require.NoError(t, n.PublishUser(context.Background(), 1, "before-cancel"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)

	// Drain the pre-cancel message to avoid false positives.
	select {
	case <-payloads:
	default:
	}

	require.NoError(t, n.PublishUser(context.Background(), 1, "after-cancel"))
	assert.Never(t, func() bool {
		select {
		case payload := <-payloads:
			return payload == "after-cancel"
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}
