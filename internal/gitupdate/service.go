package gitupdate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/lukelzlz/nanobot/internal/config"
)

// maxPark bounds how long the wake timer sleeps when no repo is due.
const maxPark = time.Hour

const stashMessage = "nanobot-auto-update-stash"

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Notifier receives the result of an update that changed a repository or
// hit a conflict.
type Notifier interface {
	Notify(ctx context.Context, result UpdateResult)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(ctx context.Context, result UpdateResult)

// Notify executes the notifier function.
func (f NotifierFunc) Notify(ctx context.Context, result UpdateResult) {
	f(ctx, result)
}

// Service keeps configured repositories up to date on their schedules.
type Service struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
	git    GitRunner

	mu    sync.Mutex
	repos []*Repo

	notifier Notifier

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

// WithGitRunner overrides git execution for tests.
func WithGitRunner(runner GitRunner) Option {
	return func(s *Service) {
		if runner != nil {
			s.git = runner
		}
	}
}

// WithNotifier configures the change notification callback.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewService builds the updater from configuration, restoring persisted
// state by repository path.
func NewService(cfg config.GitUpdateConfig, statePath string, opts ...Option) (*Service, error) {
	s := &Service{
		store:  NewStore(statePath),
		logger: slog.Default().With("component", "gitupdate"),
		now:    time.Now,
		git:    execRunner{},
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	states, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, rc := range cfg.Repos {
		repo := &Repo{
			ID:             newRepoID(),
			Path:           rc.Path,
			Branch:         rc.Branch,
			Schedule:       rc.Schedule,
			Enabled:        rc.Enabled,
			OnUpdate:       rc.OnUpdate,
			OnConflict:     rc.OnConflict,
			NotifyOnChange: rc.NotifyOnChange,
		}
		if st, ok := states[rc.Path]; ok {
			repo.State = st
		}
		if repo.Enabled && repo.State.NextRunAtMs == nil {
			if next, err := nextRun(repo.Schedule, now); err == nil {
				repo.State.NextRunAtMs = int64Ptr(next.UnixMilli())
			} else {
				s.logger.Warn("invalid schedule", "path", repo.Path, "schedule", repo.Schedule, "error", err)
			}
		}
		s.repos = append(s.repos, repo)
	}
	return s, nil
}

// SetNotifier updates the notifier after initialization.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		return
	}
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Status returns a snapshot of all repos.
func (s *Service) Status() []*Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Repo, 0, len(s.repos))
	for _, repo := range s.repos {
		copied := *repo
		out = append(out, &copied)
	}
	return out
}

// Start runs the wake loop until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
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

func (s *Service) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) untilNextWake() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *int64
	for _, repo := range s.repos {
		if !repo.Enabled || repo.State.NextRunAtMs == nil {
			continue
		}
		if earliest == nil || *repo.State.NextRunAtMs < *earliest {
			earliest = repo.State.NextRunAtMs
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

// RunDue updates every enabled repo whose next run is at or before now,
// sequentially, then persists the batch once. Returns the results.
func (s *Service) RunDue(ctx context.Context) []UpdateResult {
	s.mu.Lock()
	now := s.now()
	nowMs := now.UnixMilli()
	var due []*Repo
	for _, repo := range s.repos {
		if repo.Enabled && repo.State.NextRunAtMs != nil && *repo.State.NextRunAtMs <= nowMs {
			due = append(due, repo)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return *due[i].State.NextRunAtMs < *due[j].State.NextRunAtMs
	})
	notifier := s.notifier
	s.mu.Unlock()

	results := make([]UpdateResult, 0, len(due))
	for _, repo := range due {
		result := s.updateRepo(ctx, repo)
		results = append(results, result)
		if notifier != nil && repo.NotifyOnChange &&
			(result.Status == StatusUpdated || result.Status == StatusConflict) {
			notifier.Notify(ctx, result)
		}
	}

	if len(due) > 0 {
		s.mu.Lock()
		if err := s.store.Save(s.repos); err != nil {
			s.logger.Error("state save failed", "error", err)
		}
		s.mu.Unlock()
	}
	return results
}

// RunUpdate triggers an immediate update of one repo by id.
func (s *Service) RunUpdate(ctx context.Context, id string) (UpdateResult, error) {
	s.mu.Lock()
	var repo *Repo
	for _, r := range s.repos {
		if r.ID == id {
			repo = r
			break
		}
	}
	notifier := s.notifier
	s.mu.Unlock()
	if repo == nil {
		return UpdateResult{}, fmt.Errorf("unknown repo id %q", id)
	}

	result := s.updateRepo(ctx, repo)
	if notifier != nil && repo.NotifyOnChange &&
		(result.Status == StatusUpdated || result.Status == StatusConflict) {
		notifier.Notify(ctx, result)
	}
	s.mu.Lock()
	if err := s.store.Save(s.repos); err != nil {
		s.logger.Error("state save failed", "error", err)
	}
	s.mu.Unlock()
	return result, nil
}

// updateRepo runs the fetch and rebase flow for one repo and records the
// outcome in its state. Local changes are stashed around the rebase; a
// conflicted rebase is aborted and the stash restored. State mutations hold
// s.mu; Status snapshots these structs concurrently.
func (s *Service) updateRepo(ctx context.Context, repo *Repo) UpdateResult {
	now := s.now()
	s.mu.Lock()
	repo.State.LastRunAtMs = int64Ptr(now.UnixMilli())
	s.mu.Unlock()

	result := s.doUpdate(ctx, repo)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch result.Status {
	case StatusUpdated:
		repo.State.LastStatus = strPtr(StatusOK)
		repo.State.LastError = nil
		repo.State.LastCommit = strPtr(result.NewCommit)
		repo.State.UpdatesApplied++
		s.logger.Info("repo updated", "path", repo.Path,
			"old", result.OldCommit, "new", result.NewCommit, "commits", len(result.Changes))
	case StatusNoChange:
		repo.State.LastStatus = strPtr(StatusNoChange)
		repo.State.LastError = nil
	case StatusConflict:
		repo.State.LastStatus = strPtr(StatusConflict)
		repo.State.LastError = strPtr(result.Err)
		s.logger.Warn("rebase conflict", "path", repo.Path)
	default:
		repo.State.LastStatus = strPtr(StatusError)
		repo.State.LastError = strPtr(result.Err)
		s.logger.Error("update failed", "path", repo.Path, "error", result.Err)
	}

	if next, err := nextRun(repo.Schedule, now); err == nil {
		repo.State.NextRunAtMs = int64Ptr(next.UnixMilli())
	} else {
		repo.State.NextRunAtMs = nil
	}
	return result
}

func (s *Service) doUpdate(ctx context.Context, repo *Repo) UpdateResult {
	result := UpdateResult{RepoID: repo.ID, Path: repo.Path}

	if _, err := os.Stat(repo.Path); err != nil {
		result.Status = StatusError
		result.Err = fmt.Sprintf("Repository path does not exist: %s", repo.Path)
		return result
	}

	old, _, err := s.git.Git(ctx, repo.Path, "rev-parse", "HEAD")
	if err != nil {
		result.Status = StatusError
		result.Err = err.Error()
		return result
	}
	result.OldCommit = old

	if _, _, err := s.git.Git(ctx, repo.Path, "fetch", "origin", repo.Branch); err != nil {
		result.Status = StatusError
		result.Err = err.Error()
		return result
	}

	remote, _, err := s.git.Git(ctx, repo.Path, "rev-parse", "origin/"+repo.Branch)
	if err != nil {
		result.Status = StatusError
		result.Err = err.Error()
		return result
	}
	if remote == old {
		result.Status = StatusNoChange
		result.NewCommit = old
		return result
	}

	if log, _, err := s.git.Git(ctx, repo.Path, "log", "--oneline", old+".."+remote); err == nil && log != "" {
		result.Changes = strings.Split(log, "\n")
	}

	porcelain, _, err := s.git.Git(ctx, repo.Path, "status", "--porcelain")
	if err != nil {
		result.Status = StatusError
		result.Err = err.Error()
		return result
	}
	hasLocal := porcelain != ""

	if !hasLocal {
		if _, _, err := s.git.Git(ctx, repo.Path, "pull", "--rebase", "origin", repo.Branch); err != nil {
			result.Status = StatusError
			result.Err = err.Error()
			return result
		}
	} else {
		if _, _, err := s.git.Git(ctx, repo.Path, "stash", "push", "-m", stashMessage); err != nil {
			result.Status = StatusError
			result.Err = err.Error()
			return result
		}
		_, code, rebaseErr := s.git.Git(ctx, repo.Path, "rebase", "origin/"+repo.Branch)
		status, _, _ := s.git.Git(ctx, repo.Path, "status", "--porcelain")
		if rebaseErr != nil || code != 0 || strings.Contains(status, "UU") {
			s.git.Git(ctx, repo.Path, "rebase", "--abort")
			s.git.Git(ctx, repo.Path, "stash", "pop")
			result.Status = StatusConflict
			result.Err = "Rebase conflict - local changes preserved"
			if len(repo.OnConflict) > 0 {
				hookResults := runHooks(ctx, repo.Path, repo.OnConflict)
				s.logHooks("on_conflict", repo.Path, hookResults)
			}
			return result
		}
		s.git.Git(ctx, repo.Path, "stash", "pop")
	}

	newCommit, _, err := s.git.Git(ctx, repo.Path, "rev-parse", "HEAD")
	if err != nil {
		result.Status = StatusError
		result.Err = err.Error()
		return result
	}
	result.NewCommit = newCommit
	result.Status = StatusUpdated

	if len(repo.OnUpdate) > 0 {
		hookResults := runHooks(ctx, repo.Path, repo.OnUpdate)
		s.logHooks("on_update", repo.Path, hookResults)
	}
	return result
}

func (s *Service) logHooks(kind, path string, results []string) {
	for _, r := range results {
		s.logger.Info("hook result", "kind", kind, "path", path, "result", r)
	}
}

func nextRun(expr string, now time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now), nil
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

// newRepoID returns a short opaque id, the first 8 hex chars of a UUID.
func newRepoID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
