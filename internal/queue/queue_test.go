package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, "task-events-queue")
}

func TestRedisQueue_FIFO(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	entries := [][]byte{
		[]byte(`{"task_id":1}`),
		[]byte(`{"task_id":2}`),
		[]byte(`{"task_id":3}`),
	}
	for _, e := range entries {
		require.NoError(t, q.Append(ctx, e))
	}

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range entries {
		got, err := q.BlockingPop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	n, err = q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisQueue_PopIsDestructive(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Append(ctx, []byte("only-entry")))

	got, err := q.BlockingPop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("only-entry"), got)

	// the same entry is never redelivered
	_, err = q.BlockingPop(ctx, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisQueue_BlockingPopTimeout(t *testing.T) {
	_, q := setupTestQueue(t)

	start := time.Now()
	_, err := q.BlockingPop(context.Background(), 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrEmpty)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestRedisQueue_CompetingConsumers(t *testing.T) {
	mr, q := setupTestQueue(t)
	ctx := context.Background()

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	q2 := NewRedis(other, "task-events-queue")

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Append(ctx, []byte{byte('a' + i)}))
	}

	// two consumers split the backlog; every entry is seen exactly once
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		consumer := q
		if i%2 == 1 {
			consumer = q2
		}
		got, err := consumer.BlockingPop(ctx, time.Second)
		require.NoError(t, err)
		assert.False(t, seen[string(got)], "entry %q delivered twice", got)
		seen[string(got)] = true
	}
	assert.Len(t, seen, 4)
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-url", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis URL")
}

func TestDial_Unreachable(t *testing.T) {
	// reserved TEST-NET address, nothing listens here
	_, err := Dial(context.Background(), "redis://192.0.2.1:6379", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, FailureNone},
		{"empty", ErrEmpty, FailureEmpty},
		{"wrapped empty", errors.Join(errors.New("pop"), ErrEmpty), FailureEmpty},
		{"net timeout", timeoutErr{}, FailureTimeout},
		{"deadline exceeded", context.DeadlineExceeded, FailureTimeout},
		{"connection refused", errors.New("dial tcp: connection refused"), FailureConnection},
		{"anything else", errors.New("broken pipe"), FailureConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
