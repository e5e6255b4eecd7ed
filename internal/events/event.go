// Package events carries crawl progress from workers to any number of observers.
package events

import "time"

// Type tags the event variant
type Type string

const (
	TypeStart    Type = "start"
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Event is a crawl progress notification. Which fields are meaningful
// depends on Type:
//
//	start     Source
//	progress  Source, Page, FoundOnPage, TotalSoFar
//	complete  Source, TotalCrawled, TotalSaved
//	error     Source, Page, Message, WillRetry, Cancelled
type Event struct {
	Type         Type      `json:"type"`
	JobID        string    `json:"jobId"`
	Source       string    `json:"source"`
	Page         int       `json:"page,omitempty"`
	FoundOnPage  int       `json:"foundOnPage"`
	TotalSoFar   int       `json:"totalSoFar"`
	TotalCrawled int       `json:"totalCrawled"`
	TotalSaved   int       `json:"totalSaved"`
	Message      string    `json:"message,omitempty"`
	WillRetry    bool      `json:"willRetry"`
	Cancelled    bool      `json:"cancelled,omitempty"`
	Time         time.Time `json:"time"`
}

// Start announces that a source worker is about to fetch its first page
func Start(jobID, source string) Event {
	return Event{Type: TypeStart, JobID: jobID, Source: source, Time: time.Now()}
}

// Progress reports a processed page
func Progress(jobID, source string, page, foundOnPage, totalSoFar int) Event {
	return Event{
		Type:        TypeProgress,
		JobID:       jobID,
		Source:      source,
		Page:        page,
		FoundOnPage: foundOnPage,
		TotalSoFar:  totalSoFar,
		Time:        time.Now(),
	}
}

// Complete reports that a source worker finished
func Complete(jobID, source string, totalCrawled, totalSaved int) Event {
	return Event{
		Type:         TypeComplete,
		JobID:        jobID,
		Source:       source,
		TotalCrawled: totalCrawled,
		TotalSaved:   totalSaved,
		Time:         time.Now(),
	}
}

// Error reports a failed attempt. willRetry tells observers whether the
// worker is going to try the page again.
func Error(jobID, source string, page int, message string, willRetry bool) Event {
	return Event{
		Type:      TypeError,
		JobID:     jobID,
		Source:    source,
		Page:      page,
		Message:   message,
		WillRetry: willRetry,
		Time:      time.Now(),
	}
}

// Cancelled reports that a source stopped because its job was cancelled
func Cancelled(jobID, source string, page int) Event {
	e := Error(jobID, source, page, "crawl cancelled", false)
	e.Cancelled = true
	return e
}
