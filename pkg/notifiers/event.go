package notifiers

import (
	"time"

	"github.com/samvad-hq/acmewire/internal/domain"
)

// Event represents the payload delivered downstream.
type Event struct {
	DirectoryID string        `json:"directory_id"`
	Healthy     bool          `json:"healthy"`
	Report      domain.Report `json:"report"`
	EmittedAt   time.Time     `json:"emitted_at"`
}

// NewEvent constructs an Event for the given probe report.
func NewEvent(report domain.Report) Event {
	return Event{
		DirectoryID: report.DirectoryID,
		Healthy:     report.Healthy,
		Report:      report,
		EmittedAt:   time.Now().UTC(),
	}
}

func (e Event) healthLabel() string {
	if e.Healthy {
		return "healthy"
	}
	return "unhealthy"
}
