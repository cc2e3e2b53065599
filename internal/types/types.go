package types

import "time"

// Operation is the kind of mutation a change performs on a single file.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpModify Operation = "MODIFY"
	OpDelete Operation = "DELETE"
)

// ContentType tells whether GeneratedChange.Content is the whole file or a unified diff.
type ContentType string

const (
	ContentFull ContentType = "FULL"
	ContentDiff ContentType = "DIFF"
)

// Status is shared by per-file results and whole records.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusCompleted          Status = "COMPLETED"
	StatusPartiallyCompleted Status = "PARTIALLY_COMPLETED"
	StatusFailed             Status = "FAILED"
	StatusSuccess            Status = "SUCCESS"
	StatusSkipped            Status = "SKIPPED"
)

// Strategy records which path produced the content written for a change.
type Strategy string

const (
	StrategyNone      Strategy = ""
	StrategyFull      Strategy = "FULL"
	StrategyPatched   Strategy = "PATCHED"
	StrategyExtracted Strategy = "EXTRACTED"
)

// GeneratedChange is one proposed edit handed to the engine by an execution source.
type GeneratedChange struct {
	FilePath    string      `json:"filePath" yaml:"filePath"`
	Operation   Operation   `json:"operation" yaml:"operation"`
	Content     string      `json:"content" yaml:"content"`
	ContentType ContentType `json:"contentType" yaml:"contentType"`
}

// IsDiff reports whether the change carries a unified diff.
func (c GeneratedChange) IsDiff() bool {
	return c.ContentType == ContentDiff
}

// AppliedFile is the outcome of processing one GeneratedChange.
type AppliedFile struct {
	FilePath     string    `json:"filePath"`
	AbsolutePath string    `json:"absolutePath"`
	Operation    Operation `json:"operation"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	BytesWritten int64     `json:"bytesWritten"`
	BackupPath   string    `json:"backupPath,omitempty"`
	Strategy     Strategy  `json:"strategy,omitempty"`
	Existed      bool      `json:"existed"`
	Warning      string    `json:"warning,omitempty"`
	Diff         string    `json:"diff,omitempty"`
}

// ApplicationRecord describes one apply run.
type ApplicationRecord struct {
	ApplicationID   string        `json:"applicationId"`
	ExecutionID     string        `json:"executionId"`
	Status          Status        `json:"status"`
	TargetDirectory string        `json:"targetDirectory"`
	AppliedFiles    []AppliedFile `json:"appliedFiles"`
	TotalFiles      int           `json:"totalFiles"`
	SuccessfulFiles int           `json:"successfulFiles"`
	FailedFiles     int           `json:"failedFiles"`
	SkippedFiles    int           `json:"skippedFiles"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	DryRun          bool          `json:"dryRun"`
	CanRollback     bool          `json:"canRollback"`
}

// Tally recomputes the aggregate counters and the derived status from AppliedFiles.
func (r *ApplicationRecord) Tally() {
	r.TotalFiles = len(r.AppliedFiles)
	r.SuccessfulFiles, r.FailedFiles, r.SkippedFiles = 0, 0, 0
	for _, f := range r.AppliedFiles {
		switch f.Status {
		case StatusSuccess:
			r.SuccessfulFiles++
		case StatusFailed:
			r.FailedFiles++
		case StatusSkipped:
			r.SkippedFiles++
		}
	}
	r.Status = DeriveStatus(r.SuccessfulFiles, r.FailedFiles)
}

// RollbackRecord describes one rollback of an ApplicationRecord.
type RollbackRecord struct {
	RollbackID      string     `json:"rollbackId"`
	ApplicationID   string     `json:"applicationId"`
	Status          Status     `json:"status"`
	FilesRestored   []string   `json:"filesRestored"`
	FilesDeleted    []string   `json:"filesDeleted"`
	TotalFiles      int        `json:"totalFiles"`
	SuccessfulFiles int        `json:"successfulFiles"`
	FailedFiles     int        `json:"failedFiles"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
	DryRun          bool       `json:"dryRun"`
}

// DeriveStatus maps aggregate counts onto a terminal record status.
// A run that failed nothing is COMPLETED, including a run with no files at all.
func DeriveStatus(successful, failed int) Status {
	switch {
	case failed == 0:
		return StatusCompleted
	case successful > 0:
		return StatusPartiallyCompleted
	default:
		return StatusFailed
	}
}
