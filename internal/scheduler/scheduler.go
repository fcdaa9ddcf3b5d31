// Package scheduler runs one-shot scan workloads on a container backend.
// The production backend drives the Docker Engine API; an in-memory fake
// implements the same interface for tests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Label keys attached to every managed workload.
const (
	// LabelManaged marks workloads owned by this service.
	LabelManaged = "com.vantagesec.mcpwarden.managed"

	// LabelScanID carries the scan record id the workload executes.
	LabelScanID = "com.vantagesec.mcpwarden.scan-id"

	// LabelDeadline carries the RFC3339 instant after which the reconciler
	// treats the workload as timed out.
	LabelDeadline = "com.vantagesec.mcpwarden.deadline"
)

// maxNameLength is the longest workload name the backends accept.
const maxNameLength = 63

// Common errors returned by scheduler implementations.
var (
	// ErrInvalidJob indicates a job spec that cannot be submitted.
	ErrInvalidJob = errors.New("invalid workload spec")

	// ErrJobNotFound indicates the handle does not name a known workload.
	ErrJobNotFound = errors.New("workload not found")

	// ErrBackendUnavailable indicates the workload backend cannot be reached.
	ErrBackendUnavailable = errors.New("workload backend unavailable")

	// ErrSchedulerClosed indicates the scheduler has been shut down.
	ErrSchedulerClosed = errors.New("scheduler has been closed")
)

var workloadNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// Phase describes the observed lifecycle state of a workload.
type Phase string

const (
	// PhasePending means the workload is created but not yet running.
	PhasePending Phase = "pending"

	// PhaseRunning means the workload is executing.
	PhaseRunning Phase = "running"

	// PhaseSucceeded means the workload exited with code zero.
	PhaseSucceeded Phase = "succeeded"

	// PhaseFailed means the workload exited non-zero or was killed.
	PhaseFailed Phase = "failed"

	// PhaseUnknown means the backend reported an unrecognized state.
	PhaseUnknown Phase = "unknown"
)

// Terminal reports whether the phase is final.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Job describes a single one-shot workload.
type Job struct {
	// Name uniquely identifies the workload on the backend. Lowercase,
	// at most 63 characters.
	Name string

	// Image is the container image to run.
	Image string

	// Command overrides the image command.
	Command []string

	// Env is delivered to the workload as environment variables.
	Env map[string]string

	// Labels are attached to the workload alongside the managed marker.
	Labels map[string]string

	// Timeout bounds the workload runtime. The backend records it as a
	// deadline label; the reconciler enforces it.
	Timeout time.Duration
}

// JobStatus is the observed state of a submitted workload.
type JobStatus struct {
	Handle     string
	Name       string
	Phase      Phase
	ExitCode   int
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Scheduler runs one-shot workloads. Submit returns an opaque handle that
// the remaining operations accept; they also accept the job name, so state
// recovered from storage can reach a workload without the original handle.
type Scheduler interface {
	// Submit creates and starts the workload.
	Submit(ctx context.Context, job Job) (string, error)

	// Status reports the current state of the workload.
	Status(ctx context.Context, handle string) (*JobStatus, error)

	// Logs returns the workload's combined output. tailLines <= 0 returns
	// everything.
	Logs(ctx context.Context, handle string, tailLines int) (string, error)

	// Cancel requests termination of a running workload.
	Cancel(ctx context.Context, handle string) error

	// Remove deletes a terminal workload. Removing an unknown handle is
	// not an error.
	Remove(ctx context.Context, handle string) error
}

// JobName derives the canonical workload name for a scan id.
func JobName(scanID string) string {
	name := "mcpwarden-scan-" + strings.ToLower(scanID)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return strings.TrimRight(name, "-.")
}

// ValidateJob checks a job spec before submission.
func ValidateJob(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if len(job.Name) > maxNameLength {
		return fmt.Errorf("%w: name %q exceeds %d characters", ErrInvalidJob, job.Name, maxNameLength)
	}
	if !workloadNameRegex.MatchString(job.Name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidJob, job.Name, workloadNameRegex.String())
	}
	if job.Image == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidJob)
	}
	for key := range job.Env {
		if key == "" || strings.Contains(key, "=") {
			return fmt.Errorf("%w: invalid environment variable name %q", ErrInvalidJob, key)
		}
	}
	return nil
}
