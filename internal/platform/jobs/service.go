package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	JobFiscalRefresh = "fiscal_refresh"
)

type RunFunc func(context.Context) (any, error)

// Service runs background jobs one at a time and records each run in
// job_runs when a database is attached.
type Service struct {
	DB    *pgxpool.Pool
	log   *zap.Logger
	queue chan job
}

type job struct {
	Type string
	Run  RunFunc
}

func New(db *pgxpool.Pool, log *zap.Logger) *Service {
	if log == nil {
		log = zap.L()
	}
	return &Service{
		DB:    db,
		log:   log.Named("jobs"),
		queue: make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
}

// Schedule enqueues run every interval until ctx is done. A non-positive
// interval disables the schedule.
func (s *Service) Schedule(ctx context.Context, jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, run)
			}
		}
	}()
}

func (s *Service) Enqueue(jobType string, run RunFunc) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		s.log.Warn("job queue full", zap.String("jobType", jobType))
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.log.Warn("job run failed", zap.String("jobType", j.Type), zap.Error(err))
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID := ""
	if s.DB != nil {
		id := uuid.NewString()
		if _, err := s.DB.Exec(ctx, `
      INSERT INTO job_runs (id, job_type, status)
      VALUES ($1,$2,$3)
    `, id, j.Type, "running"); err != nil {
			s.log.Warn("job run insert failed", zap.Error(err))
		} else {
			runID = id
		}
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
		details = map[string]any{"error": err.Error()}
	}
	if runID == "" {
		return details, err
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil || details == nil {
		detailsJSON = []byte("{}")
	}
	if _, updErr := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = now()
    WHERE id = $3
  `, status, detailsJSON, runID); updErr != nil {
		s.log.Warn("job run update failed", zap.Error(updErr))
	}
	return details, err
}
