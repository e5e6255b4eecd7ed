package engine

import "github.com/dealmungchi/dealcrawler/pkg/errors"

// StopReason tells why a source stopped paging
type StopReason string

const (
	StopMaxPages    StopReason = "max_pages"
	StopNoMorePages StopReason = "no_more_pages"
	StopCaughtUp    StopReason = "caught_up"
	StopTimeFilter  StopReason = "time_filter"
	StopError       StopReason = "error"
	StopCancelled   StopReason = "cancelled"
)

// SourceStats counts what one source produced in a job. It carries no
// timing so runs can be compared across execution modes.
type SourceStats struct {
	Source        string     `json:"source"`
	PagesCrawled  int        `json:"pagesCrawled"`
	TotalCrawled  int        `json:"totalCrawled"`
	TotalSaved    int        `json:"totalSaved"`
	Updated       int        `json:"updated"`
	AlreadySeen   int        `json:"alreadySeen"`
	Malformed     int        `json:"malformed"`
	Filtered      int        `json:"filtered"`
	PersistErrors int        `json:"persistErrors"`
	DetailErrors  int        `json:"detailErrors"`
	StopReason    StopReason `json:"stopReason"`
}

// SourceError is the terminal failure of one source
type SourceError struct {
	Source    string           `json:"source"`
	Page      int              `json:"page"`
	Type      errors.ErrorType `json:"type"`
	Message   string           `json:"message"`
	Attempts  int              `json:"attempts"`
	Cancelled bool             `json:"cancelled,omitempty"`
}

// Stats aggregates a job
type Stats struct {
	TotalCrawled int                    `json:"totalCrawled"`
	TotalSaved   int                    `json:"totalSaved"`
	TotalUpdated int                    `json:"totalUpdated"`
	PerSource    map[string]SourceStats `json:"perSource"`
	ElapsedMs    int64                  `json:"elapsedMs"`
}

// CrawlJobResult is returned once every source of a job is done.
// Success is true iff Errors is empty.
type CrawlJobResult struct {
	JobID     string                 `json:"jobId"`
	Success   bool                   `json:"success"`
	Cancelled bool                   `json:"cancelled,omitempty"`
	Stats     Stats                  `json:"stats"`
	Errors    map[string]SourceError `json:"errors"`
}
