package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"docpulse/internal/config"
	"docpulse/internal/documents"
)

const defaultCleanupBatchSize = 1000

// sessionChildren are the tables whose rows belong to a viewer session.
// They are removed together with their session so no orphan rows remain.
var sessionChildren = []struct {
	model any
	table string
}{
	{&documents.FunnelEvent{}, "funnel_events"},
	{&documents.PageView{}, "page_views"},
}

// CleanupJob prunes viewer activity older than the retention period
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	now       func() time.Time
	batchSize int
	pause     time.Duration
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		batchSize: defaultCleanupBatchSize,
		pause:     100 * time.Millisecond,
	}
}

// Run removes sessions started before the retention period, together with
// their page views and funnel events. A non-positive retention disables
// pruning.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.RetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Retention cleanup disabled")
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoffDate := j.now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old viewer activity",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoffDate))

	deleted, err := j.pruneSessions(db, cutoffDate)
	if err != nil {
		j.logger.Error("Failed to delete old sessions",
			slog.Any("error", err),
			slog.Int64("deleted_so_far", deleted))
		return err
	}

	if deleted > 0 {
		j.logger.Info("Cleaned up old sessions",
			slog.Int64("deleted_count", deleted),
			slog.Int("retention_days", retentionDays))
	}

	return nil
}

// pruneSessions deletes in batches to avoid locking the database for too
// long. Each batch removes the child rows of its sessions first.
func (j *CleanupJob) pruneSessions(db *gorm.DB, cutoff time.Time) (int64, error) {
	totalDeleted := int64(0)

	for {
		var ids []uint
		err := db.Model(&documents.ViewerSession{}).
			Where("started_at < ?", cutoff).
			Order("id").
			Limit(j.batchSize).
			Pluck("id", &ids).Error
		if err != nil {
			return totalDeleted, err
		}
		if len(ids) == 0 {
			return totalDeleted, nil
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			for _, child := range sessionChildren {
				if err := tx.Where("session_id IN ?", ids).Delete(child.model).Error; err != nil {
					return fmt.Errorf("failed to delete %s: %w", child.table, err)
				}
			}
			return tx.Where("id IN ?", ids).Delete(&documents.ViewerSession{}).Error
		})
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += int64(len(ids))

		if len(ids) < j.batchSize {
			return totalDeleted, nil
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(j.pause)
	}
}
