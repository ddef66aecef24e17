package broker

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Client for tests, avoiding a live Redis instance.
type Fake struct {
	mtx    sync.Mutex
	queues map[string][]string
}

func NewFake() *Fake {
	return &Fake{queues: make(map[string][]string)}
}

func (f *Fake) Push(_ context.Context, queue string, payload string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.queues[queue] = append(f.queues[queue], payload)
	return nil
}

func (f *Fake) Pop(_ context.Context, queue string, _ time.Duration) (string, bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	q := f.queues[queue]
	if len(q) == 0 {
		return "", false, nil
	}
	v := q[0]
	f.queues[queue] = q[1:]
	return v, true, nil
}

func (f *Fake) TryPop(ctx context.Context, queue string) (string, bool, error) {
	return f.Pop(ctx, queue, 0)
}

func (f *Fake) Close() error { return nil }
