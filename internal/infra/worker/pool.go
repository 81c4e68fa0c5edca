// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a long-running loop; it should return once ctx is done.
type Task func(ctx context.Context) error

// Pool runs named loops in their own goroutines and waits for all of them.
// A panicking loop is logged and does not take the process down.
type Pool struct {
	wg  sync.WaitGroup
	log zerolog.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

func NewPool(logger *zerolog.Logger) *Pool {
	return &Pool{
		log:     logger.With().Str("component", "worker-pool").Logger(),
		running: map[string]struct{}{},
	}
}

// Go starts task under name. Names must be unique while the task runs.
func (p *Pool) Go(ctx context.Context, name string, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	if _, dup := p.running[name]; dup {
		p.mu.Unlock()
		return fmt.Errorf("worker %q already running", name)
	}
	p.running[name] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.running, name)
			p.mu.Unlock()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				p.log.Error().Str("worker", name).Interface("panic", rec).Msg("worker panicked")
			}
		}()

		p.log.Info().Str("worker", name).Msg("worker started")
		err := task(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error().Err(err).Str("worker", name).Msg("worker stopped with error")
			return
		}
		p.log.Info().Str("worker", name).Msg("worker stopped")
	}()
	return nil
}

// GoN starts n copies of task named name-0 … name-(n-1).
func (p *Pool) GoN(ctx context.Context, name string, n int, task Task) error {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if err := p.Go(ctx, fmt.Sprintf("%s-%d", name, i), task); err != nil {
			return err
		}
	}
	return nil
}

// Running reports how many tasks have not returned yet.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

func (p *Pool) Wait() { p.wg.Wait() }
