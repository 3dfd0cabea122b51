// Package feed supplies ordered market events to the engine: the
// event-source contract plus an in-memory replay, a CSV tick-file reader,
// and a websocket stream.
package feed

import (
	"context"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// Source yields the timestamp-ordered event stream for one security. Next
// returns domain.ErrFeedClosed after the last event.
type Source interface {
	Security() string
	Next(ctx context.Context) (domain.MarketEvent, error)
}

// SliceSource replays a pre-staged event slice. The slice is assumed already
// timestamp-ordered by the ingestion collaborator.
type SliceSource struct {
	security string
	events   []domain.MarketEvent
	pos      int
}

// NewSliceSource wraps an ordered event slice for one security.
func NewSliceSource(security string, events []domain.MarketEvent) *SliceSource {
	return &SliceSource{security: security, events: events}
}

// Security returns the security this source belongs to.
func (s *SliceSource) Security() string { return s.security }

// Next returns the next event or domain.ErrFeedClosed at end of slice.
func (s *SliceSource) Next(ctx context.Context) (domain.MarketEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketEvent{}, err
	}
	if s.pos >= len(s.events) {
		return domain.MarketEvent{}, domain.ErrFeedClosed
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Len returns the total number of events in the slice.
func (s *SliceSource) Len() int { return len(s.events) }
