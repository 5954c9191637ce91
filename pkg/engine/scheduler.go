package engine

import "sync"

// stepJob is one schedulable unit of work: a single step of one execution.
// The system prompt travels with the job so a step never rebuilds it.
type stepJob struct {
	executionID  string
	systemPrompt string
}

// scheduler is a fixed worker pool draining an unbounded step queue. Steps
// for one execution are serialized by construction: a job is only enqueued
// by the controller at start, by the previous step's continue path, or by
// resume, never two at once for the same id.
type scheduler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []stepJob
	closed bool
	wg     sync.WaitGroup
}

func newScheduler(workers int, run func(stepJob)) *scheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &scheduler{}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker(run)
	}
	return s
}

func (s *scheduler) worker(run func(stepJob)) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		run(job)
	}
}

// Enqueue adds a job to the queue. It reports false once the scheduler is
// closed; callers treat that as a halt, not an error.
func (s *scheduler) Enqueue(job stepJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.queue = append(s.queue, job)
	s.cond.Signal()
	return true
}

// Close drains the queue and waits for in-flight steps to finish.
func (s *scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}
