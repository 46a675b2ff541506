package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// purgeFunc deletes rows older than cutoff and reports how many went.
type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

type RetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	// Name doubles as the metrics label.
	Name  string
	Days  int
	Purge purgeFunc
}

// NewRetentionJob builds a job that deletes rows older than Days.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Purge == nil {
		return nil, fmt.Errorf("purge function required")
	}
	if params.Name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Days <= 0 {
		return nil, fmt.Errorf("%s: retention days must be positive", params.Name)
	}
	return &retentionJob{
		logg:  params.Logger,
		db:    params.DB,
		name:  params.Name,
		days:  params.Days,
		purge: params.Purge,
		now:   time.Now,
	}, nil
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqPurger interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob purges published outbox rows.
func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo outboxPurger, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	return NewRetentionJob(RetentionJobParams{Logger: logg, DB: db, Name: "outbox-retention", Days: days, Purge: repo.DeletePublishedBefore})
}

// NewDLQRetentionJob purges dead-lettered outbox rows.
func NewDLQRetentionJob(logg *logger.Logger, db txRunner, repo dlqPurger, days int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	if days <= 0 {
		days = defaultDLQRetentionDays
	}
	return NewRetentionJob(RetentionJobParams{Logger: logg, DB: db, Name: "dlq-retention", Days: days, Purge: repo.DeleteFailedBefore})
}

type retentionJob struct {
	logg  *logger.Logger
	db    txRunner
	name  string
	days  int
	purge purgeFunc
	now   func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.days) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.purge(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   deleted,
	}), "retention cleanup complete")
	return nil
}
