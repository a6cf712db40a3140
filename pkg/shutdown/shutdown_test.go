package shutdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdownRunsCallbacksThenClosersInReverse(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	m.OnShutdown("http", func(context.Context) { record("http") })
	m.OnClose("store", closerFunc(func() error { record("store"); return nil }))
	m.OnClose("cache", closerFunc(func() error { record("cache"); return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)

	assert.Equal(t, []string{"http", "cache", "store"}, order)
}

func TestShutdownTimeoutStillCloses(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	defer close(block)
	m.OnShutdown("stuck", func(context.Context) { <-block })

	closed := false
	m.OnClose("store", closerFunc(func() error { closed = true; return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m.Shutdown(ctx)
	assert.True(t, closed)
}
