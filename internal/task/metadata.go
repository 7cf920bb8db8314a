package task

import (
	"time"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	StatusDownloading RunStatus = "downloading"
	StatusCompleted   RunStatus = "completed"
	StatusFailed      RunStatus = "failed"
	StatusCancelled   RunStatus = "cancelled"
)

// RunMetadata describes one conversion run.
type RunMetadata struct {
	ID            string    `json:"id"`
	Playlist      string    `json:"playlist"`
	Output        string    `json:"output"`
	SegmentDir    string    `json:"segment_dir,omitempty"`
	TotalSegments int       `json:"total_segments"`
	CreatedTime   time.Time `json:"created_time"`
	Status        RunStatus `json:"status"`
}

// SegmentRecord is the ledger row for one segment's terminal result.
type SegmentRecord struct {
	Index     int    `json:"index"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Succeeded bool   `json:"succeeded"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}
