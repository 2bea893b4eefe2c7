package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/config"
	"github.com/disneyvacation/wikihow-link-bot/internal/models"
	"github.com/disneyvacation/wikihow-link-bot/internal/notifications"
	"github.com/disneyvacation/wikihow-link-bot/internal/outcomelog"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/disneyvacation/wikihow-link-bot/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	digestPrefix     = "digest-"
	digestDateLayout = "2006-01-02"
)

// ErrSweepInProgress is returned by TriggerSweep while a sweep is running
var ErrSweepInProgress = errors.New("sweep already in progress")

// Sweeper runs one moderation pass
type Sweeper interface {
	Sweep(ctx context.Context) (models.SweepResult, error)
}

// OutcomeLog is the log file exported by the weekly digest
type OutcomeLog interface {
	Snapshot() ([]byte, error)
	Trim(keep int) error
}

// Stats describes the scheduler's recent activity
type Stats struct {
	Sweeps       int                 `json:"sweeps"`
	Failures     int                 `json:"failures"`
	Running      bool                `json:"running"`
	LastSweep    *models.SweepResult `json:"last_sweep,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
	LastErrorAt  *time.Time          `json:"last_error_at,omitempty"`
	NextSweepAt  *time.Time          `json:"next_sweep_at,omitempty"`
	LastDigestAt *time.Time          `json:"last_digest_at,omitempty"`
}

// Service runs the sweep loop and the weekly digest job
type Service struct {
	config   *config.Config
	sweeper  Sweeper
	notifier notifications.NotificationInterface
	storage  storage.StorageInterface
	outcomes OutcomeLog
	cron     *cron.Cron

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// sweeping is held for the duration of every sweep
	sweeping sync.Mutex

	mu    sync.RWMutex
	stats Stats
}

// NewService creates a new scheduler service. store may be nil, in which
// case digests are only emailed.
func NewService(cfg *config.Config, sweeper Sweeper, notifier notifications.NotificationInterface, store storage.StorageInterface, outcomes OutcomeLog) *Service {
	return &Service{
		config:   cfg,
		sweeper:  sweeper,
		notifier: notifier,
		storage:  store,
		outcomes: outcomes,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cron.PrintfLogger(logrus.StandardLogger())),
		),
		now:   time.Now,
		sleep: sleepContext,
	}
}

// Start schedules the weekly digest job
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.DigestSchedule, func() {
		logrus.Info("Starting scheduled log digest")
		if err := s.RunDigest(context.Background()); err != nil {
			logrus.Errorf("Scheduled log digest failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", s.config.DigestSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started, log digest on %q", s.config.DigestSchedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

// Run sweeps until ctx is cancelled. The wait after each sweep depends on
// how it ended: the regular interval on success, a short backoff after a
// transient platform fault, and a long cool-down after anything else.
func (s *Service) Run(ctx context.Context) {
	for {
		s.sweeping.Lock()
		wait := s.sweep(ctx)
		s.sweeping.Unlock()

		if ctx.Err() != nil {
			return
		}

		next := s.now().Add(wait)
		s.mu.Lock()
		s.stats.NextSweepAt = &next
		s.mu.Unlock()

		if err := s.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// TriggerSweep starts a sweep in the background. It returns
// ErrSweepInProgress without starting one when a sweep is already running.
func (s *Service) TriggerSweep(ctx context.Context) error {
	if !s.sweeping.TryLock() {
		return ErrSweepInProgress
	}

	go func() {
		defer s.sweeping.Unlock()
		logrus.Info("Starting manually triggered sweep")
		s.sweep(ctx)
	}()
	return nil
}

// sweep runs one pass and returns how long to wait before the next
func (s *Service) sweep(ctx context.Context) time.Duration {
	s.setRunning(true)
	defer s.setRunning(false)

	result, err := s.sweeper.Sweep(ctx)
	s.recordSweep(result, err)

	switch {
	case err == nil:
		logrus.Infof("Sweep finished in %s: %d posts in window, %d re-approved",
			result.Duration, result.PostsInBand, result.Reapproved)
		return s.config.SweepInterval
	case ctx.Err() != nil:
		return 0
	case platform.IsRetryable(err):
		logrus.Warnf("Platform unavailable, retrying in %s: %v", s.config.TransientBackoff, err)
		return s.config.TransientBackoff
	}

	logrus.Errorf("Sweep failed, pausing for %s: %v", s.config.ErrorCooldown, err)
	alert := &models.Alert{
		Subject:   s.alertSubject(),
		Detail:    s.alertDetail(result, err),
		CreatedAt: s.now(),
	}
	if err := s.notifier.SendAlert(ctx, alert); err != nil {
		logrus.Errorf("Failed to alert operators: %v", err)
	}
	return s.config.ErrorCooldown
}

func (s *Service) alertSubject() string {
	return "ERROR - r/" + strings.Join(s.config.Subreddits, "+")
}

func (s *Service) alertDetail(result models.SweepResult, err error) string {
	var detail strings.Builder
	detail.WriteString(err.Error())
	detail.WriteString("\n\n")
	fmt.Fprintf(&detail, "Sweep started %s, %d posts fetched, %d in window, %d skipped after errors.\n",
		result.StartedAt.Format(time.RFC3339), result.PostsFetched, result.PostsInBand, result.PostErrors)
	fmt.Fprintf(&detail, "The bot resumes in %s.", s.config.ErrorCooldown)
	return detail.String()
}

// RunDigest archives the outcome log, emails it and trims it. The log is
// only trimmed when every configured delivery succeeded.
func (s *Service) RunDigest(ctx context.Context) error {
	data, err := s.outcomes.Snapshot()
	if err != nil {
		return err
	}

	now := s.now()
	filename := digestPrefix + now.Format(digestDateLayout) + ".log"

	if s.storage != nil {
		if err := s.storage.Store(ctx, filename, data); err != nil {
			return fmt.Errorf("failed to archive log digest: %w", err)
		}
		if err := s.pruneArchive(ctx, now); err != nil {
			logrus.Warnf("Failed to prune digest archive: %v", err)
		}
	}

	if s.notifier.DigestEnabled() {
		digest := &models.LogDigest{
			WeekOf:   now.AddDate(0, 0, -7),
			Filename: filename,
			Data:     data,
			Counts:   outcomelog.Tally(data),
		}
		if err := s.notifier.SendDigest(ctx, digest); err != nil {
			return fmt.Errorf("failed to send log digest: %w", err)
		}
	}

	if err := s.outcomes.Trim(s.config.LogKeepLines); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.LastDigestAt = &now
	s.mu.Unlock()
	return nil
}

// pruneArchive deletes archived digests dated more than ArchiveKeepWeeks
// before now. Names that do not carry a digest date are left alone.
func (s *Service) pruneArchive(ctx context.Context, now time.Time) error {
	if s.config.ArchiveKeepWeeks <= 0 {
		return nil
	}

	names, err := s.storage.List(ctx, digestPrefix)
	if err != nil {
		return err
	}

	// digest names carry the local date of the run
	y, m, d := now.AddDate(0, 0, -7*s.config.ArchiveKeepWeeks).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	var errs []string
	for _, name := range names {
		date, ok := digestDate(name)
		if !ok || !date.Before(cutoff) {
			continue
		}
		if err := s.storage.Delete(ctx, name); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		logrus.Infof("Pruned archived digest %s", name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("prune errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// digestDate parses the date out of an archived digest name
func digestDate(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, digestPrefix)
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, ".log")
	if !ok {
		return time.Time{}, false
	}
	date, err := time.Parse(digestDateLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// GetStats returns a copy of the current statistics
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *Service) setRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Running = running
}

func (s *Service) recordSweep(result models.SweepResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Sweeps++
	s.stats.LastSweep = &result
	if err != nil {
		s.stats.Failures++
		at := s.now()
		s.stats.LastError = err.Error()
		s.stats.LastErrorAt = &at
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
