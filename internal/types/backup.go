package types

import "time"

// CycleStatus is the outcome of one backup cycle
type CycleStatus string

const (
	CycleStatusRunning CycleStatus = "running"
	CycleStatusSuccess CycleStatus = "success"
	CycleStatusPartial CycleStatus = "partial"
	CycleStatusFailed  CycleStatus = "failed"
	CycleStatusSkipped CycleStatus = "skipped"
)

// CycleResult summarizes a finished backup cycle
type CycleResult struct {
	ID          string        `json:"id"`
	Status      CycleStatus   `json:"status"`
	StartedAt   time.Time     `json:"startedAt"`
	FinishedAt  time.Time     `json:"finishedAt"`
	ArchivePath string        `json:"archivePath,omitempty"`
	Files       int           `json:"files"`
	Bytes       int64         `json:"bytes"`
	FailedFiles []FailedFile  `json:"failedFiles,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"durationNs"`
}

// FailedFile records a download that did not make it into the archive
type FailedFile struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Error string `json:"error"`
}
