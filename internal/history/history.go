package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"steward/internal/protocol"
)

// RunRecord is one account outcome archived from one run.
type RunRecord struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	Platform   string `gorm:"index"`
	Account    string
	Success    bool
	Message    string
	Quota      float64
	Used       float64
	HasBalance bool
	CreatedAt  time.Time
}

// Store archives check-in outcomes to SQLite so past runs stay queryable
// after the ledger files have been overwritten.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append archives all outcomes of one run under a shared run ID.
func (s *Store) Append(runID string, outcomes []protocol.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	records := make([]RunRecord, 0, len(outcomes))
	for _, o := range outcomes {
		rec := RunRecord{
			RunID:     runID,
			Platform:  string(o.Platform),
			Account:   o.Account,
			Success:   o.Success,
			Message:   o.Message,
			CreatedAt: o.Timestamp,
		}
		if o.Balance != nil {
			rec.HasBalance = true
			rec.Quota = o.Balance.Quota
			rec.Used = o.Balance.Used
		}
		records = append(records, rec)
	}

	if err := s.db.Create(&records).Error; err != nil {
		return fmt.Errorf("archive run outcomes: %w", err)
	}
	return nil
}

// Prune deletes records older than the retention window.
func (s *Store) Prune(retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	if err := s.db.Where("created_at < ?", cutoff).Delete(&RunRecord{}).Error; err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (s *Store) Recent(limit int) ([]RunRecord, error) {
	var records []RunRecord
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load recent history: %w", err)
	}
	return records, nil
}

// DB exposes the underlying connection pool for health checks.
func (s *Store) DB() (*sql.DB, error) {
	return s.db.DB()
}
