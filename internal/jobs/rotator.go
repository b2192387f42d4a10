package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fuomag9/checkpulse/internal/logstore"
)

// RotatableLogs is the subset of the log store the rotator needs
type RotatableLogs interface {
	List(includeArchived bool) ([]string, error)
	Compress(sourceID, archiveID string) error
	Truncate(id string) error
}

// RotationReport summarizes one rotation pass
type RotationReport struct {
	NothingToRotate bool
	Archived        []string // archive ids created
	Skipped         int      // empty live logs
	Failed          int      // logs left in place because compression failed
	TruncateErrors  int      // archived logs whose live file could not be emptied
}

// Rotator compacts every live probe log into a timestamped archive
type Rotator struct {
	logs RotatableLogs
	now  func() time.Time
}

// NewRotator creates a rotator over logs
func NewRotator(logs RotatableLogs) *Rotator {
	return &Rotator{logs: logs, now: time.Now}
}

// Rotate archives each live log as <id>-<unixMillis> and empties it. A log
// whose archive could not be written is left intact for the next pass, and a
// failure on one log never stops the others.
func (r *Rotator) Rotate(ctx context.Context) (RotationReport, error) {
	var report RotationReport

	ids, err := r.logs.List(false)
	if err != nil {
		return report, fmt.Errorf("failed to list logs: %w", err)
	}
	if len(ids) == 0 {
		report.NothingToRotate = true
		log.Info("Log rotation: nothing to rotate")
		return report, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logger := log.WithField("log", id)
		archiveID := fmt.Sprintf("%s-%d", id, r.now().UnixMilli())

		if err := r.logs.Compress(id, archiveID); err != nil {
			if errors.Is(err, logstore.ErrEmptyLog) {
				report.Skipped++
				continue
			}
			report.Failed++
			logger.Errorf("Failed to compress log, leaving it in place: %v", err)
			continue
		}
		report.Archived = append(report.Archived, archiveID)

		if err := r.logs.Truncate(id); err != nil {
			report.TruncateErrors++
			logger.Warnf("Log archived as %s but could not be truncated: %v", archiveID, err)
		}
	}

	log.WithFields(log.Fields{
		"archived": len(report.Archived),
		"skipped":  report.Skipped,
		"failed":   report.Failed,
	}).Info("Log rotation finished")

	return report, nil
}
