package syncgroup

import (
	"context"
	"testing"
	"time"
)

func TestGoAndWait(t *testing.T) {
	g := NewSyncGroup()
	ctx, cancel := context.WithCancel(context.Background())

	g.Go(ctx, "loop", func(ctx context.Context) { <-ctx.Done() })
	g.Go(ctx, "panics", func(context.Context) { panic("boom") })

	cancel()
	waitCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if !g.WaitContext(waitCtx) {
		t.Fatalf("loops still running: %v", g.Running())
	}
	if n := len(g.Running()); n != 0 {
		t.Fatalf("expected no running loops, got %d", n)
	}
}
