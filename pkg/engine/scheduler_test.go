package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerDrainsAllJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)

	s := newScheduler(4, func(job stepJob) {
		mu.Lock()
		seen[job.executionID]++
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		require.True(t, s.Enqueue(stepJob{executionID: "e"}))
	}
	s.Close()

	assert.Equal(t, 50, seen["e"])
}

func TestSchedulerRejectsAfterClose(t *testing.T) {
	s := newScheduler(1, func(stepJob) {})
	s.Close()
	assert.False(t, s.Enqueue(stepJob{executionID: "late"}))
}

func TestSchedulerChainedEnqueue(t *testing.T) {
	// A job may enqueue its successor from inside the worker, the way the
	// step executor's continue path does.
	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	var s *scheduler
	s = newScheduler(1, func(job stepJob) {
		mu.Lock()
		order = append(order, job.executionID)
		n := len(order)
		mu.Unlock()

		if n < 3 {
			s.Enqueue(stepJob{executionID: job.executionID})
		} else {
			close(done)
		}
	})

	require.True(t, s.Enqueue(stepJob{executionID: "e"}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("chained jobs did not run")
	}
	s.Close()

	assert.Equal(t, []string{"e", "e", "e"}, order)
}
