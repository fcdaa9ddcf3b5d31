package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeScheduler is an in-memory Scheduler for tests. Submitted jobs sit in
// PhaseRunning until a test script finishes or cancels them.
type FakeScheduler struct {
	mu        sync.Mutex
	seq       int
	jobs      map[string]*fakeJob
	removed   []string
	submitErr error
}

type fakeJob struct {
	job      Job
	status   JobStatus
	logs     string
	canceled bool
}

var _ Scheduler = (*FakeScheduler)(nil)

// NewFakeScheduler creates an empty fake backend.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{jobs: make(map[string]*fakeJob)}
}

// find resolves a handle or job name to the job and its handle. Callers hold
// the mutex.
func (f *FakeScheduler) find(handleOrName string) (string, *fakeJob, bool) {
	if j, ok := f.jobs[handleOrName]; ok {
		return handleOrName, j, true
	}
	for handle, j := range f.jobs {
		if j.status.Name == handleOrName {
			return handle, j, true
		}
	}
	return "", nil, false
}

// Submit validates and records the job, returning a synthetic handle.
func (f *FakeScheduler) Submit(_ context.Context, job Job) (string, error) {
	if err := ValidateJob(job); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}
	for _, existing := range f.jobs {
		if existing.status.Name == job.Name {
			return "", fmt.Errorf("%w: workload %s already exists", ErrInvalidJob, job.Name)
		}
	}

	f.seq++
	handle := fmt.Sprintf("fake-%d", f.seq)
	f.jobs[handle] = &fakeJob{
		job: job,
		status: JobStatus{
			Handle:    handle,
			Name:      job.Name,
			Phase:     PhaseRunning,
			StartedAt: time.Now().UTC(),
		},
	}
	return handle, nil
}

// Status returns a copy of the job's current state.
func (f *FakeScheduler) Status(_ context.Context, handle string) (*JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, j, ok := f.find(handle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	status := j.status
	return &status, nil
}

// Logs returns whatever a test scripted via Finish.
func (f *FakeScheduler) Logs(_ context.Context, handle string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, j, ok := f.find(handle)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	return j.logs, nil
}

// Cancel marks the job failed with a canceled message.
func (f *FakeScheduler) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, j, ok := f.find(handle)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, handle)
	}
	if !j.status.Phase.Terminal() {
		j.status.Phase = PhaseFailed
		j.status.Message = "canceled"
		j.status.FinishedAt = time.Now().UTC()
	}
	j.canceled = true
	return nil
}

// Remove forgets the job. Unknown handles are ignored, matching the Docker
// backend.
func (f *FakeScheduler) Remove(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if resolved, _, ok := f.find(handle); ok {
		delete(f.jobs, resolved)
		f.removed = append(f.removed, resolved)
	}
	return nil
}

// Finish scripts a terminal state: exit code zero succeeds, anything else
// fails. The logs become available through Logs.
func (f *FakeScheduler) Finish(handle string, exitCode int, logs string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, j, ok := f.find(handle)
	if !ok {
		return
	}
	j.status.ExitCode = exitCode
	j.status.FinishedAt = time.Now().UTC()
	if exitCode == 0 {
		j.status.Phase = PhaseSucceeded
	} else {
		j.status.Phase = PhaseFailed
		j.status.Message = fmt.Sprintf("exit code %d", exitCode)
	}
	j.logs = logs
}

// FailSubmit makes subsequent Submit calls return err. Pass nil to restore.
func (f *FakeScheduler) FailSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// Submitted returns the jobs currently known to the fake, newest last.
func (f *FakeScheduler) Submitted() []Job {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Job, 0, len(f.jobs))
	for i := 1; i <= f.seq; i++ {
		if j, ok := f.jobs[fmt.Sprintf("fake-%d", i)]; ok {
			out = append(out, j.job)
		}
	}
	return out
}

// Canceled reports whether Cancel was called for the handle.
func (f *FakeScheduler) Canceled(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, j, ok := f.find(handle)
	return ok && j.canceled
}

// RemovedHandles returns the handles deleted through Remove.
func (f *FakeScheduler) RemovedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.removed))
	copy(out, f.removed)
	return out
}
