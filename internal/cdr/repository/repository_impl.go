package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ReplaceMonth removes the month's rows for every customer in scope and
// writes rows in their place. Callers run it inside a transaction.
func (r *repo) ReplaceMonth(ctx context.Context, db *gorm.DB, month time.Time, scope []snowflake.ID, rows []domain.MonthlySummary) error {
	if len(scope) > 0 {
		err := db.WithContext(ctx).Exec(
			`DELETE FROM monthly_cdr_summaries WHERE month = ? AND customer_id IN ?`,
			month,
			scope,
		).Error
		if err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		return nil
	}

	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "month"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
}

func (r *repo) ListByMonth(ctx context.Context, db *gorm.DB, month time.Time, customerIDs []snowflake.ID) ([]domain.MonthlySummary, error) {
	var rows []domain.MonthlySummary
	stmt := db.WithContext(ctx).
		Model(&domain.MonthlySummary{}).
		Where("month = ?", month)
	if len(customerIDs) > 0 {
		stmt = stmt.Where("customer_id IN ?", customerIDs)
	}
	if err := stmt.Order("customer_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) FinishRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).
		Model(&domain.Run{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":               run.Status,
			"file_reference":       run.FileReference,
			"total_records":        run.TotalRecords,
			"outbound_records":     run.OutboundRecords,
			"rated_records":        run.RatedRecords,
			"customers_aggregated": run.CustomersAggregated,
			"error":                run.Error,
			"finished_at":          run.FinishedAt,
		}).Error
}

func (r *repo) ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []domain.Run
	err := db.WithContext(ctx).
		Order("started_at desc, id desc").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
