// Package journal stores a history of audit and sync runs and the price
// changes they planned or applied.
//
// The journal is write-mostly. Classification never reads it, so each run
// still starts from a fresh catalog traversal.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run is one audit or sync run.
type Run struct {
	ID            string `gorm:"primaryKey;size:36"`
	Driver        string `gorm:"index;size:16"` // audit, sync
	Mode          string `gorm:"size:16"`       // dry-run, apply; empty for audits
	MarkupPercent float64
	CostKey       string
	WholesaleKey  string
	Reviewed      int
	Complete      int
	Fixable       int
	MissingCost   int
	Updated       int
	FetchErrors   int
	Error         string    `gorm:"type:text"`
	StartedAt     time.Time `gorm:"index"`
	FinishedAt    time.Time
}

// PriceChange is one wholesale price write, planned or applied.
type PriceChange struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index;size:36"`
	EntityType string `gorm:"size:16"`
	ItemID     int64  `gorm:"index"`
	ParentID   int64
	Name       string
	Cost       float64
	Previous   *float64
	Expected   float64
	Value      string `gorm:"size:32"`
	Applied    bool
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// Journal is an open run journal.
type Journal struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the schema. The DSN prefix selects
// the driver: postgres:// or postgresql:// for PostgreSQL, mysql:// for
// MySQL, anything else is a SQLite path (an optional sqlite:// prefix is
// stripped).
func Open(dsn string) (*Journal, error) {
	if dsn == "" {
		return nil, errors.New("journal: empty DSN")
	}
	dialector := dialectorFor(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", dialector.Name(), err)
	}
	if err := db.AutoMigrate(&Run{}, &PriceChange{}); err != nil {
		_ = closeDB(db)
		return nil, fmt.Errorf("journal: migrating: %w", err)
	}
	return &Journal{db: db}, nil
}

func dialectorFor(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn)
	case strings.HasPrefix(dsn, "mysql://"):
		// go-sql-driver/mysql takes user:pass@tcp(host:port)/db without a scheme.
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	default:
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

// Close releases the connection pool.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return closeDB(j.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores run and its changes in one transaction.
func (j *Journal) Record(ctx context.Context, run Run, changes []PriceChange) error {
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("journal: recording run %s: %w", run.ID, err)
		}
		if len(changes) == 0 {
			return nil
		}
		for i := range changes {
			changes[i].RunID = run.ID
		}
		if err := tx.CreateInBatches(changes, 100).Error; err != nil {
			return fmt.Errorf("journal: recording changes for run %s: %w", run.ID, err)
		}
		return nil
	})
}

// Runs returns the most recent runs, newest first. limit <= 0 means all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := j.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("journal: listing runs: %w", err)
	}
	return runs, nil
}

// Changes returns the changes of one run in the order they were made.
func (j *Journal) Changes(ctx context.Context, runID string) ([]PriceChange, error) {
	var changes []PriceChange
	err := j.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id").
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("journal: listing changes for run %s: %w", runID, err)
	}
	return changes, nil
}
