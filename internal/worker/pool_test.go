package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tripdesk/tripdesk/internal/model"
)

func okTask(id string) Task {
	return Task{
		SourceID: id,
		Run: func(ctx context.Context) model.Result {
			return model.Result{SourceID: id, Status: model.StatusSuccess}
		},
	}
}

func TestProcessReturnsAllResultsSorted(t *testing.T) {
	p := NewPool(4, time.Second, zap.NewNop())

	var tasks []Task
	for i := 9; i >= 0; i-- {
		tasks = append(tasks, okTask(fmt.Sprintf("inquiry_%02d.txt", i)))
	}

	results := p.Process(context.Background(), tasks)
	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].SourceID > results[i].SourceID {
			t.Fatalf("results not sorted: %s before %s", results[i-1].SourceID, results[i].SourceID)
		}
	}
}

func TestProcessBoundsConcurrency(t *testing.T) {
	p := NewPool(2, time.Second, zap.NewNop())

	var inflight, peak int32
	task := func(id string) Task {
		return Task{
			SourceID: id,
			Run: func(ctx context.Context) model.Result {
				cur := atomic.AddInt32(&inflight, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inflight, -1)
				return model.Result{SourceID: id, Status: model.StatusSuccess}
			},
		}
	}

	var tasks []Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, task(fmt.Sprintf("t%d", i)))
	}
	p.Process(context.Background(), tasks)

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestTaskTimeoutSynthesizesError(t *testing.T) {
	p := NewPool(1, 20*time.Millisecond, zap.NewNop())

	tasks := []Task{{
		SourceID: "slow.txt",
		Run: func(ctx context.Context) model.Result {
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
			}
			return model.Result{SourceID: "slow.txt", Status: model.StatusSuccess}
		},
	}}

	results := p.Process(context.Background(), tasks)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Status != model.StatusError {
		t.Errorf("status = %v, want ERROR on timeout", results[0].Status)
	}
	if results[0].StatusError == "" {
		t.Error("timeout result should carry a reason")
	}
	if results[0].Fused.Methods != model.NoneMethods() {
		t.Errorf("methods = %+v, want all NONE", results[0].Fused.Methods)
	}
}

func TestProcessCancelledContext(t *testing.T) {
	p := NewPool(1, time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	slow := Task{
		SourceID: "a.txt",
		Run: func(ctx context.Context) model.Result {
			cancel()
			time.Sleep(20 * time.Millisecond)
			return model.Result{SourceID: "a.txt", Status: model.StatusSuccess}
		},
	}

	tasks := []Task{slow, okTask("b.txt"), okTask("c.txt")}
	results := p.Process(ctx, tasks)
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per task", len(results))
	}
	errored := 0
	for _, r := range results {
		if r.Status == model.StatusError {
			errored++
			if r.Fused.Methods != model.NoneMethods() {
				t.Errorf("methods for %s = %+v, want all NONE", r.SourceID, r.Fused.Methods)
			}
		}
	}
	if errored == 0 {
		t.Error("cancelled batch should synthesize error results")
	}
}

func TestZeroSizeFallsBackToOneWorker(t *testing.T) {
	p := NewPool(0, time.Second, zap.NewNop())
	if p.Size() != 1 {
		t.Errorf("size = %d, want 1", p.Size())
	}
}
