package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStrandRunsTasksInOrder(t *testing.T) {
	q := New()
	s := q.NewStrand()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		s.PushBack(TaskFunc(func() Requeue {
			got = append(got, i)
			return Done
		}))
	}

	q.Run()

	if len(got) != 5 {
		t.Fatalf("expected 5 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", got)
		}
	}
}

func TestRequeueFrontIsNotOvertaken(t *testing.T) {
	q := New()
	s := q.NewStrand()

	var got []string
	polls := 0
	s.PushBack(TaskFunc(func() Requeue {
		polls++
		if polls < 3 {
			return Front
		}
		got = append(got, "first")
		return Done
	}))
	s.PushBack(TaskFunc(func() Requeue {
		got = append(got, "second")
		return Done
	}))

	q.Run()

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("requeue-to-front was overtaken: %v", got)
	}
	if polls != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

func TestRequeueBackYieldsToLaterTasks(t *testing.T) {
	q := New()
	s := q.NewStrand()

	var got []string
	first := true
	s.PushBack(TaskFunc(func() Requeue {
		if first {
			first = false
			got = append(got, "first-pass")
			return Back
		}
		got = append(got, "first-done")
		return Done
	}))
	s.PushBack(TaskFunc(func() Requeue {
		got = append(got, "second")
		return Done
	}))

	q.Run()

	want := []string{"first-pass", "second", "first-done"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
}

func TestAtMostOneTaskPerStrandAtOnce(t *testing.T) {
	q := New()
	s := q.NewStrand()

	var active atomic.Int32
	var maxActive atomic.Int32
	var wg sync.WaitGroup
	wg.Add(50)

	for i := 0; i < 50; i++ {
		s.PushBack(TaskFunc(func() Requeue {
			defer wg.Done()
			cur := active.Add(1)
			if cur > maxActive.Load() {
				maxActive.Store(cur)
			}
			time.Sleep(100 * time.Microsecond)
			active.Add(-1)
			return Done
		}))
	}

	q.Start(4)
	wg.Wait()
	q.Stop()

	if maxActive.Load() != 1 {
		t.Fatalf("strand ran %d tasks concurrently", maxActive.Load())
	}
}

func TestStrandsRunInParallelAcrossWorkers(t *testing.T) {
	q := New()

	var running atomic.Int32
	var sawParallel atomic.Bool
	var wg sync.WaitGroup
	wg.Add(4)

	for i := 0; i < 4; i++ {
		s := q.NewStrand()
		s.PushBack(TaskFunc(func() Requeue {
			defer wg.Done()
			if running.Add(1) > 1 {
				sawParallel.Store(true)
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return Done
		}))
	}

	q.Start(4)
	wg.Wait()
	q.Stop()

	if !sawParallel.Load() {
		t.Fatal("expected tasks from different strands to overlap")
	}
}

func TestStrandRunOneDrivesInline(t *testing.T) {
	q := New()
	s := q.NewStrand()

	done := false
	s.PushBack(TaskFunc(func() Requeue {
		done = true
		return Done
	}))

	if s.Size() != 1 {
		t.Fatalf("expected one queued task, got %d", s.Size())
	}
	s.RunOne()
	if !done {
		t.Fatal("inline RunOne did not execute the task")
	}
	if s.Size() != 0 {
		t.Fatalf("task still queued after completion")
	}
}

func TestPanickingTaskCompletes(t *testing.T) {
	q := New()
	s := q.NewStrand()

	ran := false
	s.PushBack(TaskFunc(func() Requeue {
		panic("boom")
	}))
	s.PushBack(TaskFunc(func() Requeue {
		ran = true
		return Done
	}))

	q.Run()

	if !ran {
		t.Fatal("panic in an earlier task stopped the strand")
	}
}

func TestDefaultQueueIsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default must return the same queue")
	}
}
