package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskDepreciationDispatch fans the monthly batch out to one task per tenant.
// Registered on the scheduler; the per-tenant tasks carry the real work.
const TaskDepreciationDispatch = "assets:depreciation_dispatch"

// NewDepreciationDispatchTask constructs the cron-fired dispatch task.
func NewDepreciationDispatchTask() *asynq.Task {
	return asynq.NewTask(TaskDepreciationDispatch, nil, asynq.Queue(QueueDefault))
}

// NewDepreciationDispatchHandler enumerates tenants holding active assets and
// enqueues a depreciation run per tenant for the previous calendar month.
func NewDepreciationDispatchHandler(logger *slog.Logger, pool *pgxpool.Pool, client *Client) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		period := time.Now().UTC().AddDate(0, -1, 0)
		rows, err := pool.Query(ctx, `SELECT DISTINCT tenant_id FROM fixed_assets WHERE is_active`)
		if err != nil {
			return err
		}
		defer rows.Close()
		var tenants []uuid.UUID
		for rows.Next() {
			var tenantID uuid.UUID
			if err := rows.Scan(&tenantID); err != nil {
				return err
			}
			tenants = append(tenants, tenantID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, tenantID := range tenants {
			_, err := client.EnqueueDepreciationRun(ctx, DepreciationRunPayload{
				TenantID: tenantID,
				Year:     period.Year(),
				Month:    int(period.Month()),
			})
			if err != nil {
				logger.Error("enqueue depreciation run",
					slog.String("tenant_id", tenantID.String()),
					slog.Any("error", err))
			}
		}
		logger.Info("depreciation dispatch finished",
			slog.Int("tenants", len(tenants)),
			slog.Int("year", period.Year()),
			slog.Int("month", int(period.Month())))
		return nil
	}
}
