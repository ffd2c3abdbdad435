package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	aiusagedomain "github.com/aware88/fresh-crm/internal/aiusage/domain"
	auditcontext "github.com/aware88/fresh-crm/internal/auditcontext"
	"github.com/aware88/fresh-crm/internal/clock"
	"github.com/aware88/fresh-crm/internal/cloudmetrics"
	emailaccountdomain "github.com/aware88/fresh-crm/internal/emailaccount/domain"
	leaddomain "github.com/aware88/fresh-crm/internal/lead/domain"
	obsmetrics "github.com/aware88/fresh-crm/internal/observability/metrics"
	webhookdomain "github.com/aware88/fresh-crm/internal/webhook/domain"
	"github.com/aware88/fresh-crm/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

const (
	JobDeliverWebhooks    = "deliver_webhooks"
	JobRefreshEmailTokens = "refresh_email_tokens"
	JobRecalculateScores  = "recalculate_scores"
	JobRolloverAIUsage    = "rollover_ai_usage"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	WebhookSvc      webhookdomain.Service
	EmailAccountSvc emailaccountdomain.Service
	LeadSvc         leaddomain.Service
	AIUsageSvc      aiusagedomain.Service

	Config Config `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock

	webhookSvc      webhookdomain.Service
	emailAccountSvc emailaccountdomain.Service
	leadSvc         leaddomain.Service
	aiUsageSvc      aiusagedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.WebhookSvc == nil || p.EmailAccountSvc == nil || p.LeadSvc == nil || p.AIUsageSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:              p.DB,
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             cfg,
		genID:           p.GenID,
		clock:           p.Clock,
		webhookSvc:      p.WebhookSvc,
		emailAccountSvc: p.EmailAccountSvc,
		leadSvc:         p.LeadSvc,
		aiUsageSvc:      p.AIUsageSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, "system", "scheduler")
	ctx, cid := correlation.EnsureCorrelationID(ctx)
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
		zap.String("correlation_id", cid),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline and cancelation are soft timeouts: the next tick resumes
	// where the batch left off.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	cloudmetrics.RecordEngineError("", name)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobDeliverWebhooks, s.isJobEnabled(JobDeliverWebhooks), func(ctx context.Context) error {
			return s.runJob(ctx, JobDeliverWebhooks, s.cfg.DeliveryBatchSize, 30*time.Second, s.WebhookDeliveryJob)
		}},
		{JobRefreshEmailTokens, s.isJobEnabled(JobRefreshEmailTokens), func(ctx context.Context) error {
			return s.runJob(ctx, JobRefreshEmailTokens, s.cfg.RefreshBatchSize, 60*time.Second, s.EmailTokenRefreshJob)
		}},
		{JobRecalculateScores, s.isJobEnabled(JobRecalculateScores), func(ctx context.Context) error {
			return s.runJob(ctx, JobRecalculateScores, s.cfg.ScoreBatchSize, 5*time.Minute, s.LeadScoreRecalculationJob)
		}},
		{JobRolloverAIUsage, s.isJobEnabled(JobRolloverAIUsage), func(ctx context.Context) error {
			return s.runJob(ctx, JobRolloverAIUsage, s.cfg.RolloverBatchSize, 60*time.Second, s.AIUsageRolloverJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// When EnabledJobs is empty every job runs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// WebhookDeliveryJob drains due webhook deliveries in batches. Attempts
// that fail are rescheduled with backoff by the webhook service, so a
// non-empty batch never blocks the run loop for long.
func (s *Scheduler) WebhookDeliveryJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDeliverWebhooks, s.cfg.DeliveryBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		processed, err := s.webhookSvc.DeliverDue(ctx, s.clock.Now(), s.cfg.DeliveryBatchSize)
		run.AddProcessed(processed)
		schedMetrics.AddBatchProcessed(JobDeliverWebhooks, "webhook_deliveries", processed)
		if err != nil {
			s.logSchedulerError(ctx, run, "webhook delivery batch failed", JobDeliverWebhooks, 0, err)
			return err
		}
		if processed < s.cfg.DeliveryBatchSize {
			return nil
		}
	}
}

// EmailTokenRefreshJob refreshes OAuth tokens that expire within the
// configured window, ahead of any sync that would need them.
func (s *Scheduler) EmailTokenRefreshJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRefreshEmailTokens, s.cfg.RefreshBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		processed, err := s.emailAccountSvc.RefreshExpiring(ctx, s.clock.Now(), s.cfg.TokenRefreshWindow, s.cfg.RefreshBatchSize)
		run.AddProcessed(processed)
		schedMetrics.AddBatchProcessed(JobRefreshEmailTokens, "email_accounts", processed)
		if err != nil {
			s.logSchedulerError(ctx, run, "email token refresh batch failed", JobRefreshEmailTokens, 0, err)
			return err
		}
		if processed < s.cfg.RefreshBatchSize {
			return nil
		}
	}
}

// LeadScoreRecalculationJob rescores contacts whose score is missing or
// older than ScoreStaleAfter, keeping signal decay current without a
// per-activity recompute.
func (s *Scheduler) LeadScoreRecalculationJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRecalculateScores, s.cfg.ScoreBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	cutoff := s.clock.Now().Add(-s.cfg.ScoreStaleAfter)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		processed, err := s.leadSvc.RecalculateStale(ctx, cutoff, s.cfg.ScoreBatchSize)
		run.AddProcessed(processed)
		schedMetrics.AddBatchProcessed(JobRecalculateScores, "lead_scores", processed)
		if err != nil {
			s.logSchedulerError(ctx, run, "lead score batch failed", JobRecalculateScores, 0, err)
			return err
		}
		if processed < s.cfg.ScoreBatchSize {
			return nil
		}
	}
}

// AIUsageRolloverJob closes AI usage periods whose window has ended and
// burns paid top-up credit against any overflow.
func (s *Scheduler) AIUsageRolloverJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobRolloverAIUsage, s.cfg.RolloverBatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		processed, err := s.aiUsageSvc.Rollover(ctx, s.clock.Now(), s.cfg.RolloverBatchSize)
		run.AddProcessed(processed)
		schedMetrics.AddBatchProcessed(JobRolloverAIUsage, "ai_usage_periods", processed)
		if err != nil {
			s.logSchedulerError(ctx, run, "ai usage rollover batch failed", JobRolloverAIUsage, 0, err)
			return err
		}
		if processed < s.cfg.RolloverBatchSize {
			return nil
		}
	}
}
