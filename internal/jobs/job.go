package jobs

import (
	"time"

	"github.com/jwheet/MovieHound/internal/resolver"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Params start a refresh of one pending list.
type Params struct {
	ErrorsFilename  string           `json:"errorsFilename"`
	ResultsFilename string           `json:"resultsFilename"`
	Quality         resolver.Quality `json:"quality"`
	ForceQuality    bool             `json:"forceQuality"`
}

// Job is a snapshot of one refresh run. Only the run that owns the job
// mutates the table entry; readers always get copies.
type Job struct {
	ID              string           `json:"jobId"`
	Status          Status           `json:"status"`
	ErrorsFilename  string           `json:"errorsFilename"`
	ResultsFilename string           `json:"resultsFilename"`
	Quality         resolver.Quality `json:"quality"`
	ForceQuality    bool             `json:"forceQuality"`

	Total        int    `json:"total"`
	Processed    int    `json:"processed"`
	NewlyFound   int    `json:"newlyFound"`
	StillMissing int    `json:"stillMissing"`
	Current      string `json:"current"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`

	AdditionalSize string `json:"additionalSize,omitempty"`
	NewTotalSize   string `json:"newTotalSize,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	return j.Status != StatusRunning
}
