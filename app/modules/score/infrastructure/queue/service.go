package scorequeue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"github.com/Black-And-White-Club/judgeboard/app/events"
	"github.com/Black-And-White-Club/judgeboard/app/observability"
)

// QueueName is the dedicated River queue for score notifications.
const QueueName = "score"

// Service delivers score notifications through River so a broker outage
// does not lose them.
type Service struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics observability.OperationMetrics
}

// NewService creates a new River-based queue service for score notifications.
func NewService(ctx context.Context, logger *slog.Logger, dsn string, metrics observability.OperationMetrics, publisher message.Publisher) (*Service, error) {
	ctxLogger := logger.With(
		slog.String("operation", "new_score_queue_service"),
		slog.String("component", "river_queue"),
	)

	start := time.Now()
	metrics.RecordOperationAttempt(ctx, "initialize_service", "river")

	ctxLogger.Info("Initializing score queue service")

	// River requires pgx, not database/sql.
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		ctxLogger.Error("Failed to parse DSN for River", observability.ErrorAttr(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		ctxLogger.Error("Failed to create pgx pool for River", observability.ErrorAttr(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		ctxLogger.Error("Failed to ping database for River", observability.ErrorAttr(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewScoreSavedWorker(ctxLogger, publisher))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
			QueueName:          {MaxWorkers: 25},
		},
		Workers: workers,
		Logger:  ctxLogger,
	})
	if err != nil {
		pool.Close()
		ctxLogger.Error("Failed to create River client", observability.ErrorAttr(err))
		metrics.RecordOperationFailure(ctx, "initialize_service", "river")
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	metrics.RecordOperationSuccess(ctx, "initialize_service", "river")
	metrics.RecordOperationDuration(ctx, "initialize_service", "river", time.Since(start))

	ctxLogger.Info("Score queue service initialized successfully")
	return &Service{
		client:  riverClient,
		pool:    pool,
		logger:  ctxLogger,
		metrics: metrics,
	}, nil
}

// Start starts the River queue service
func (s *Service) Start(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "start_service", "river")

	s.logger.Info("Starting score queue service")

	if err := s.client.Start(ctx); err != nil {
		s.logger.Error("Failed to start River client", observability.ErrorAttr(err))
		s.metrics.RecordOperationFailure(ctx, "start_service", "river")
		return fmt.Errorf("failed to start River client: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "start_service", "river")
	s.metrics.RecordOperationDuration(ctx, "start_service", "river", time.Since(start))
	return nil
}

// Stop stops the River queue service and closes its pool.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "stop_service", "river")

	s.logger.Info("Stopping score queue service")

	err := s.client.Stop(ctx)
	s.pool.Close()
	if err != nil {
		s.logger.Error("Failed to stop River client", observability.ErrorAttr(err))
		s.metrics.RecordOperationFailure(ctx, "stop_service", "river")
		return fmt.Errorf("failed to stop River client: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "stop_service", "river")
	s.metrics.RecordOperationDuration(ctx, "stop_service", "river", time.Since(start))
	return nil
}

// NotifyScoreSaved enqueues a publish job for a committed score. Every save
// gets its own job. Uniqueness only drops an identical re-insert of the same
// save, since the args carry SavedAt and the correlation ID.
func (s *Service) NotifyScoreSaved(ctx context.Context, payload events.ScoreSavedPayloadV1) error {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "enqueue_score_saved", "river")

	job := ScoreSavedJob{
		Payload:       payload,
		CorrelationID: observability.CorrelationID(ctx),
	}

	res, err := s.client.Insert(ctx, job, &river.InsertOpts{
		Queue:       QueueName,
		MaxAttempts: 10,
		// Keying on status or total would let a later save that returns to an
		// earlier state be dropped as a duplicate of the first.
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to enqueue score saved job",
			observability.CorrelationAttr(ctx),
			slog.String("entry_id", payload.EntryID),
			observability.ErrorAttr(err),
		)
		s.metrics.RecordOperationFailure(ctx, "enqueue_score_saved", "river")
		return fmt.Errorf("failed to enqueue score saved job: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "enqueue_score_saved", "river")
	s.metrics.RecordOperationDuration(ctx, "enqueue_score_saved", "river", time.Since(start))

	s.logger.DebugContext(ctx, "Enqueued score saved job",
		observability.CorrelationAttr(ctx),
		slog.Int64("job_id", res.Job.ID),
		slog.Bool("duplicate", res.UniqueSkippedAsDuplicate),
	)
	return nil
}

// HealthCheck verifies the queue's database pool is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("score queue unhealthy: %w", err)
	}
	return nil
}
