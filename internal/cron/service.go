package cron

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxPark bounds how long the wake timer sleeps when no job is due.
const maxPark = time.Hour

// AgentRunner executes a fired job and returns the agent's response text.
type AgentRunner interface {
	Run(ctx context.Context, job *Job) (string, error)
}

// AgentRunnerFunc adapts a function to an AgentRunner.
type AgentRunnerFunc func(ctx context.Context, job *Job) (string, error)

// Run executes the agent runner function.
func (f AgentRunnerFunc) Run(ctx context.Context, job *Job) (string, error) {
	return f(ctx, job)
}

// MessageSender delivers a job result to a channel recipient.
type MessageSender interface {
	Send(ctx context.Context, channel, to, content string) error
}

// MessageSenderFunc adapts a function to a MessageSender.
type MessageSenderFunc func(ctx context.Context, channel, to, content string) error

// Send executes the message sender function.
func (f MessageSenderFunc) Send(ctx context.Context, channel, to, content string) error {
	return f(ctx, channel, to, content)
}

// Service owns the persisted job list and a single soonest-wake timer.
type Service struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	jobs   []*Job
	loaded bool

	runner AgentRunner
	sender MessageSender

	wake    chan struct{}
	started bool
	wg      sync.WaitGroup
}

// Option configures the service.
type Option func(*Service)

// WithLogger configures the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAgentRunner configures the runner invoked when a job fires.
func WithAgentRunner(runner AgentRunner) Option {
	return func(s *Service) {
		if runner != nil {
			s.runner = runner
		}
	}
}

// WithMessageSender configures delivery for jobs with deliver payloads.
func WithMessageSender(sender MessageSender) Option {
	return func(s *Service) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// NewService creates a cron service backed by the given jobs.json path.
func NewService(storePath string, opts ...Option) *Service {
	s := &Service{
		store:  NewStore(storePath),
		logger: slog.Default().With("component", "cron"),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StorePath returns the backing jobs.json path.
func (s *Service) StorePath() string { return s.store.Path() }

// SetAgentRunner updates the runner after initialization.
func (s *Service) SetAgentRunner(runner AgentRunner) {
	if runner == nil {
		return
	}
	s.mu.Lock()
	s.runner = runner
	s.mu.Unlock()
}

// SetMessageSender updates the sender after initialization.
func (s *Service) SetMessageSender(sender MessageSender) {
	if sender == nil {
		return
	}
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

func (s *Service) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	jobs, err := s.store.Load()
	if err != nil {
		return err
	}
	s.jobs = jobs
	s.loaded = true
	return nil
}

// AddJob creates a job, persists it, and rearms the timer. One-time "at"
// jobs are marked for deletion after their single run.
func (s *Service) AddJob(name string, schedule Schedule, message string, deliver bool, channel, to string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	now := s.now()
	job := &Job{
		ID:       newJobID(),
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload: Payload{
			Kind:    PayloadAgentTurn,
			Message: message,
			Deliver: deliver,
		},
		CreatedAtMs:    now.UnixMilli(),
		UpdatedAtMs:    now.UnixMilli(),
		DeleteAfterRun: schedule.Kind == "at",
	}
	if channel != "" {
		job.Payload.Channel = strPtr(channel)
	}
	if to != "" {
		job.Payload.To = strPtr(to)
	}

	next, ok, err := schedule.Next(now)
	if err != nil {
		return nil, err
	}
	if ok {
		job.State.NextRunAtMs = int64Ptr(next.UnixMilli())
	}

	s.jobs = append(s.jobs, job)
	if err := s.store.Save(s.jobs); err != nil {
		s.jobs = s.jobs[:len(s.jobs)-1]
		return nil, err
	}
	s.nudge()
	return job, nil
}

// ListJobs returns a snapshot of jobs sorted by creation time.
func (s *Service) ListJobs(includeDisabled bool) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !includeDisabled && !job.Enabled {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs < out[j].CreatedAtMs })
	return out, nil
}

// RemoveJob deletes a job by id. Returns false when the id is unknown.
func (s *Service) RemoveJob(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}
	for i, job := range s.jobs {
		if job.ID == id {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			if err := s.store.Save(s.jobs); err != nil {
				return false, err
			}
			s.nudge()
			return true, nil
		}
	}
	return false, nil
}

// EnableJob toggles a job and recomputes its next run when enabling.
func (s *Service) EnableJob(id string, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return false, err
	}
	for _, job := range s.jobs {
		if job.ID != id {
			continue
		}
		job.Enabled = enabled
		job.UpdatedAtMs = s.now().UnixMilli()
		if enabled {
			if next, ok, err := job.Schedule.Next(s.now()); err == nil && ok {
				job.State.NextRunAtMs = int64Ptr(next.UnixMilli())
			} else {
				job.State.NextRunAtMs = nil
			}
		}
		if err := s.store.Save(s.jobs); err != nil {
			return false, err
		}
		s.nudge()
		return true, nil
	}
	return false, nil
}

// Start runs the wake loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			wait := s.untilNextWake()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-s.wake:
				timer.Stop()
			case <-timer.C:
				s.RunDue(ctx)
			}
		}
	}()
	return nil
}

// Stop waits for the wake loop to exit.
func (s *Service) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nudge wakes the loop so it recomputes its next sleep.
func (s *Service) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// untilNextWake computes how long to sleep before the earliest due job.
func (s *Service) untilNextWake() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *int64
	for _, job := range s.jobs {
		if !job.Enabled || job.State.NextRunAtMs == nil {
			continue
		}
		if earliest == nil || *job.State.NextRunAtMs < *earliest {
			earliest = job.State.NextRunAtMs
		}
	}
	if earliest == nil {
		return maxPark
	}
	wait := time.UnixMilli(*earliest).Sub(s.now())
	if wait < 0 {
		return 0
	}
	if wait > maxPark {
		return maxPark
	}
	return wait
}

// RunDue executes every enabled job whose next run is at or before now,
// sequentially in next-run order, then persists the batch once. Returns
// the number of jobs that fired.
func (s *Service) RunDue(ctx context.Context) int {
	s.mu.Lock()
	if err := s.ensureLoaded(); err != nil {
		s.mu.Unlock()
		s.logger.Error("cron load failed", "error", err)
		return 0
	}
	now := s.now()
	nowMs := now.UnixMilli()
	var due []*Job
	for _, job := range s.jobs {
		if job.Enabled && job.State.NextRunAtMs != nil && *job.State.NextRunAtMs <= nowMs {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return *due[i].State.NextRunAtMs < *due[j].State.NextRunAtMs
	})
	runner := s.runner
	sender := s.sender
	s.mu.Unlock()

	for _, job := range due {
		s.runJob(ctx, job, runner, sender)
	}

	s.mu.Lock()
	if len(due) > 0 {
		remaining := s.jobs[:0]
		for _, job := range s.jobs {
			if job.DeleteAfterRun && job.State.LastRunAtMs != nil {
				continue
			}
			remaining = append(remaining, job)
		}
		s.jobs = remaining
		if err := s.store.Save(s.jobs); err != nil {
			s.logger.Error("cron save failed", "error", err)
		}
	}
	s.mu.Unlock()
	return len(due)
}

// runJob touches job.State only while holding s.mu; ListJobs and the wake
// loop read the same structs concurrently. The runner and sender calls stay
// unlocked since the agent may call back into the service via the cron tool.
func (s *Service) runJob(ctx context.Context, job *Job, runner AgentRunner, sender MessageSender) {
	now := s.now()
	s.mu.Lock()
	job.State.LastRunAtMs = int64Ptr(now.UnixMilli())
	job.UpdatedAtMs = now.UnixMilli()
	s.mu.Unlock()

	var result string
	var runErr error
	if runner != nil {
		result, runErr = runner.Run(ctx, job)
	}
	if runErr != nil {
		s.logger.Error("cron job failed", "id", job.ID, "name", job.Name, "error", runErr)
	} else {
		s.logger.Info("cron job ran", "id", job.ID, "name", job.Name)
	}

	if runErr == nil && job.Payload.Deliver && sender != nil &&
		job.Payload.Channel != nil && job.Payload.To != nil && strings.TrimSpace(result) != "" {
		if err := sender.Send(ctx, *job.Payload.Channel, *job.Payload.To, result); err != nil {
			s.logger.Error("cron delivery failed", "id", job.ID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if runErr != nil {
		job.State.LastStatus = strPtr("error")
		job.State.LastError = strPtr(runErr.Error())
	} else {
		job.State.LastStatus = strPtr("ok")
		job.State.LastError = nil
	}
	if job.DeleteAfterRun {
		job.State.NextRunAtMs = nil
		return
	}
	next, ok, err := job.Schedule.Next(now)
	if err != nil || !ok {
		job.State.NextRunAtMs = nil
		return
	}
	job.State.NextRunAtMs = int64Ptr(next.UnixMilli())
}

// newJobID returns a short opaque id, the first 8 hex chars of a UUID.
func newJobID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
