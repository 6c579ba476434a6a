package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-outbound/core"
)

const (
	// RefreshJobID identifies credential refresh work on the job queue.
	RefreshJobID = "outbound.credential.refresh"

	defaultRefreshCheckInterval = time.Minute
)

// RefreshScheduler watches a credential cache and enqueues a refresh job when
// the cached credential enters its renew window. Refresh work is deduplicated
// on the queue by an idempotency key derived from the source name, so
// overlapping ticks produce a single job.
type RefreshScheduler struct {
	cache      *CredentialCache
	enqueuer   core.JobEnqueuer
	sourceName string
	interval   time.Duration
	logger     core.Logger
	now        func() time.Time
}

type RefreshSchedulerOption func(*RefreshScheduler)

func WithRefreshInterval(interval time.Duration) RefreshSchedulerOption {
	return func(s *RefreshScheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithRefreshLogger(logger core.Logger) RefreshSchedulerOption {
	return func(s *RefreshScheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRefreshNow(now func() time.Time) RefreshSchedulerOption {
	return func(s *RefreshScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRefreshScheduler(
	cache *CredentialCache,
	enqueuer core.JobEnqueuer,
	sourceName string,
	opts ...RefreshSchedulerOption,
) (*RefreshScheduler, error) {
	if cache == nil {
		return nil, fmt.Errorf("auth: refresh scheduler requires a credential cache")
	}
	if enqueuer == nil {
		return nil, fmt.Errorf("auth: refresh scheduler requires a job enqueuer")
	}
	sourceName = strings.TrimSpace(sourceName)
	if sourceName == "" {
		return nil, fmt.Errorf("auth: refresh scheduler requires a source name")
	}
	scheduler := &RefreshScheduler{
		cache:      cache,
		enqueuer:   enqueuer,
		sourceName: sourceName,
		interval:   defaultRefreshCheckInterval,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(scheduler)
	}
	return scheduler, nil
}

// Tick enqueues one refresh job if the cached credential needs replacing.
// It reports whether a job was enqueued.
func (s *RefreshScheduler) Tick(ctx context.Context) (bool, error) {
	if s == nil || s.cache == nil || s.enqueuer == nil {
		return false, fmt.Errorf("auth: refresh scheduler is not configured")
	}
	if !s.cache.NeedsRefresh() {
		return false, nil
	}
	msg := &core.JobExecutionMessage{
		JobID: RefreshJobID,
		Parameters: map[string]any{
			"source":       s.sourceName,
			"requested_at": s.now().UTC().Format(time.RFC3339),
		},
		IdempotencyKey: fmt.Sprintf("%s:%s", RefreshJobID, s.sourceName),
		DedupPolicy:    "drop",
	}
	if err := s.enqueuer.Enqueue(ctx, msg); err != nil {
		return false, fmt.Errorf("auth: enqueue credential refresh: %w", err)
	}
	if s.logger != nil {
		s.logger.Debug("credential refresh enqueued", "source", s.sourceName)
	}
	return true, nil
}

// Run ticks on the configured interval until ctx is cancelled. Enqueue
// failures are logged and retried on the next tick.
func (s *RefreshScheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("auth: refresh scheduler is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && s.logger != nil {
				s.logger.Warn("credential refresh tick failed", "source", s.sourceName, "error", err)
			}
		}
	}
}

// RefreshHandler executes one refresh job: it invalidates the cache and
// forces a fetch so the next outbound call finds a fresh credential waiting.
func (s *RefreshScheduler) RefreshHandler(ctx context.Context, msg *core.JobExecutionMessage) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("auth: refresh scheduler is not configured")
	}
	if msg != nil && msg.JobID != "" && msg.JobID != RefreshJobID {
		return fmt.Errorf("auth: unexpected job id %q", msg.JobID)
	}
	s.cache.Invalidate()
	if _, err := s.cache.Credential(ctx); err != nil {
		return err
	}
	return nil
}
