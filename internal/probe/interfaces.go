package probe

import (
	"context"

	"github.com/samvad-hq/acmewire/internal/domain"
	"github.com/samvad-hq/acmewire/internal/journal"
)

// ReportNotifier delivers finished probe reports downstream.
type ReportNotifier interface {
	Notify(ctx context.Context, report domain.Report) (int, error)
}

// Journal records failed requests.
type Journal interface {
	Record(e journal.Entry) error
}

// ResultRecorder counts probe outcomes.
type ResultRecorder interface {
	IncrementProbeResult(directory string, ok bool)
}
