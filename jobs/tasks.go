package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/shepherd-cms/shepherd/internal/assets"
	"github.com/shepherd-cms/shepherd/internal/yearend"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDepreciationRun posts the monthly depreciation batch for a tenant.
	TaskDepreciationRun = "assets:depreciation_run"
	// TaskYearEndClose runs the year-end closing for a tenant fiscal year.
	TaskYearEndClose = "yearend:close"
)

// systemActorID tags journals and audit entries created by scheduled jobs.
const systemActorID int64 = 0

// DepreciationRunPayload identifies one tenant-period batch.
type DepreciationRunPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Year     int       `json:"year"`
	Month    int       `json:"month"`
}

// NewDepreciationRunTask constructs an Asynq task for a depreciation batch.
func NewDepreciationRunTask(payload DepreciationRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationRun, body, asynq.Queue(QueueDefault)), nil
}

// NewDepreciationRunHandler binds the asset service to the task type. The
// batch is idempotent per (asset, period), so asynq retries are safe.
func NewDepreciationRunHandler(logger *slog.Logger, svc *assets.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DepreciationRunPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		result, err := svc.RunMonthly(ctx, payload.TenantID, systemActorID, time.Month(payload.Month), payload.Year)
		if err != nil {
			return err
		}
		logger.Info("depreciation run finished",
			slog.String("tenant_id", payload.TenantID.String()),
			slog.Int("year", payload.Year),
			slog.Int("month", payload.Month),
			slog.Int("posted", result.Posted),
			slog.Int("skipped", result.Skipped),
			slog.Int("failures", len(result.Failures)))
		return nil
	}
}

// YearEndClosePayload identifies one tenant fiscal-year closing.
type YearEndClosePayload struct {
	TenantID                  uuid.UUID `json:"tenant_id"`
	FiscalYear                int       `json:"fiscal_year"`
	RetainedEarningsAccountID int64     `json:"retained_earnings_account_id"`
}

// NewYearEndCloseTask constructs an Asynq task for a year-end closing.
func NewYearEndCloseTask(payload YearEndClosePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskYearEndClose, body, asynq.Queue(QueueDefault)), nil
}

// NewYearEndCloseHandler binds the closing service to the task type. A year
// already closed is treated as done; captured failures are surfaced so asynq
// retries the task.
func NewYearEndCloseHandler(logger *slog.Logger, svc *yearend.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload YearEndClosePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		c, err := svc.Close(ctx, payload.TenantID, systemActorID, payload.FiscalYear, payload.RetainedEarningsAccountID)
		if err != nil {
			if errors.Is(err, yearend.ErrAlreadyClosed) {
				logger.Info("fiscal year already closed",
					slog.String("tenant_id", payload.TenantID.String()),
					slog.Int("fiscal_year", payload.FiscalYear))
				return nil
			}
			return err
		}
		logger.Info("year-end closing finished",
			slog.String("tenant_id", payload.TenantID.String()),
			slog.Int("fiscal_year", payload.FiscalYear),
			slog.String("net_income", c.NetIncome.String()))
		return nil
	}
}
