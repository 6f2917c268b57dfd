package history

import (
	"time"

	"github.com/dl-alexandre/gdbackup/internal/types"
)

// Record is one row of the cycle ledger
type Record struct {
	ID          string             `json:"id"`
	StartedAt   time.Time          `json:"startedAt"`
	FinishedAt  time.Time          `json:"finishedAt,omitempty"`
	Status      types.CycleStatus  `json:"status"`
	ArchivePath string             `json:"archivePath,omitempty"`
	Files       int                `json:"files"`
	Bytes       int64              `json:"bytes"`
	FailedFiles []types.FailedFile `json:"failedFiles,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// RecordFromResult converts a finished cycle into a ledger row
func RecordFromResult(r *types.CycleResult) Record {
	return Record{
		ID:          r.ID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Status:      r.Status,
		ArchivePath: r.ArchivePath,
		Files:       r.Files,
		Bytes:       r.Bytes,
		FailedFiles: r.FailedFiles,
		Error:       r.Error,
	}
}
