//go:build !integration

package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func nop() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestPool_RunsUntilCancelled(t *testing.T) {
	p := NewPool(nop())
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	loop := func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}
	if err := p.GoN(ctx, "exec", 3, loop); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for started.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if p.Running() != 3 {
		t.Fatalf("running = %d, want 3", p.Running())
	}

	cancel()
	p.Wait()
	if p.Running() != 0 {
		t.Fatalf("running after wait = %d", p.Running())
	}
}

func TestPool_RejectsDuplicateNameAndNilTask(t *testing.T) {
	p := NewPool(nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); p.Wait() }()

	block := func(ctx context.Context) error { <-ctx.Done(); return nil }
	if err := p.Go(ctx, "refund", block); err != nil {
		t.Fatal(err)
	}
	if err := p.Go(ctx, "refund", block); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if err := p.Go(ctx, "x", nil); err == nil {
		t.Fatal("nil task accepted")
	}
}

func TestPool_SurvivesPanic(t *testing.T) {
	p := NewPool(nop())
	if err := p.Go(context.Background(), "bad", func(ctx context.Context) error { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	p.Wait()
	if p.Running() != 0 {
		t.Fatalf("panicked task still counted")
	}
}
