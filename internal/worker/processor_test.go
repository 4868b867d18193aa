package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mlm_go_server/internal/pkg/queue"
	"github.com/qs3c/mlm_go_server/internal/service"
)

type fakeAllocator struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeAllocator) Allocate(ctx context.Context, paymentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, paymentID)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

func (f *fakeAllocator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setupQueue(t *testing.T) (*queue.Queue, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return queue.NewQueue(rdb, "allocation_test"), func() {
		rdb.Close()
		mr.Close()
	}
}

func TestProcessor_Success(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()

	alloc := &fakeAllocator{}
	p := NewProcessor(alloc, q, 3, nil)

	err := p.Process(context.Background(), &queue.AllocationMessage{PaymentID: "pay-1", Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"pay-1"}, alloc.calls)

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestProcessor_TransientErrorRequeued(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	alloc := &fakeAllocator{err: errors.New("database is locked")}
	p := NewProcessor(alloc, q, 3, nil)

	err := p.Process(ctx, &queue.AllocationMessage{PaymentID: "pay-1", Attempt: 1})
	assert.Error(t, err)

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "pay-1", msg.PaymentID)
	assert.Equal(t, 2, msg.Attempt)
	assert.Equal(t, "database is locked", msg.LastError)
}

func TestProcessor_AttemptsExhausted(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	alloc := &fakeAllocator{err: errors.New("timeout")}
	p := NewProcessor(alloc, q, 3, nil)

	err := p.Process(ctx, &queue.AllocationMessage{PaymentID: "pay-1", Attempt: 3})
	assert.Error(t, err)

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "pay-1", dead[0].PaymentID)
	assert.Equal(t, 3, dead[0].Attempt)
	assert.Equal(t, "timeout", dead[0].LastError)
}

func TestProcessor_PermanentErrorsDeadLettered(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"cycle", fmt.Errorf("%w: 1 -> 2 -> 1", service.ErrReferralCycle)},
		{"not confirmed", service.ErrPaymentNotConfirmed},
		{"not found", service.ErrPaymentNotFound},
		{"tier missing", fmt.Errorf("%w: gold", service.ErrTierNotFound)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, cleanup := setupQueue(t)
			defer cleanup()
			ctx := context.Background()

			p := NewProcessor(&fakeAllocator{err: tt.err}, q, 3, nil)
			err := p.Process(ctx, &queue.AllocationMessage{PaymentID: "pay-1", Attempt: 1})
			assert.ErrorIs(t, err, tt.err)

			length, err := q.Length(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), length)

			dead, err := q.DeadLetters(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, dead, 1)
		})
	}
}

func TestProcessor_Run(t *testing.T) {
	q, cleanup := setupQueue(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Push(ctx, &queue.AllocationMessage{PaymentID: "pay-1", Attempt: 1}))
	require.NoError(t, q.Push(ctx, &queue.AllocationMessage{PaymentID: "pay-2", Attempt: 1}))

	alloc := &fakeAllocator{}
	p := NewProcessor(alloc, q, 3, nil)

	done := make(chan struct{})
	go func() {
		p.Run(ctx, q, 2)
		close(done)
	}()

	assert.Eventually(t, func() bool { return alloc.callCount() == 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("workers did not stop")
	}
}
