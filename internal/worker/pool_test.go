package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestPoolRunsTasks(t *testing.T) {
	pool := NewPool(2, zerolog.Nop())
	pool.Start()

	var mu sync.Mutex
	done := make(map[int]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.Schedule("task", func(context.Context) {
			defer wg.Done()
			mu.Lock()
			done[i] = true
			mu.Unlock()
		})
	}
	wg.Wait()
	pool.Stop()

	if len(done) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(done))
	}
}

func TestPoolStopIsIdempotentAndDropsLateTasks(t *testing.T) {
	pool := NewPool(1, zerolog.Nop())
	pool.Start()
	pool.Stop()
	pool.Stop()

	ran := false
	pool.Schedule("late", func(context.Context) { ran = true })
	if ran {
		t.Fatal("task scheduled after stop must not run")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	pool := NewPool(1, zerolog.Nop())
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(2)
	pool.Schedule("boom", func(context.Context) {
		defer wg.Done()
		panic("exploded")
	})
	pool.Schedule("after", func(context.Context) {
		defer wg.Done()
	})
	wg.Wait()
	pool.Stop()
}
