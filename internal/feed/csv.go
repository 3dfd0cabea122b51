package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/mmsim/internal/domain"
)

// CSV tick files carry one event per row: timestamp,type,price,volume.
// Timestamps accept RFC3339 or "2006-01-02 15:04:05" (interpreted as UTC);
// type is BID, ASK or TRADE, case-insensitive. A header row is detected and
// skipped.
const csvTimeLayout = "2006-01-02 15:04:05"

// CSVSource streams events from one security's tick file. Rows are read
// lazily so large files do not need to fit in memory.
type CSVSource struct {
	security string
	file     *os.File
	reader   *csv.Reader
	line     int
	closed   bool
}

// OpenCSVSource opens <dir>/<security>.csv as an event source.
func OpenCSVSource(dir, security string) (*CSVSource, error) {
	path := filepath.Join(dir, security+".csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return &CSVSource{security: security, file: f, reader: r}, nil
}

// Security returns the security this source belongs to.
func (s *CSVSource) Security() string { return s.security }

// Next returns the next valid event, skipping header and malformed rows, or
// domain.ErrFeedClosed at end of file.
func (s *CSVSource) Next(ctx context.Context) (domain.MarketEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketEvent{}, err
	}
	if s.closed {
		return domain.MarketEvent{}, domain.ErrFeedClosed
	}
	for {
		rec, err := s.reader.Read()
		if err == io.EOF {
			s.closed = true
			s.file.Close()
			return domain.MarketEvent{}, domain.ErrFeedClosed
		}
		if err != nil {
			return domain.MarketEvent{}, fmt.Errorf("feed: %s line %d: %w", s.security, s.line, err)
		}
		s.line++
		ev, ok := parseRecord(rec)
		if !ok {
			// header or malformed row
			continue
		}
		return ev, nil
	}
}

// Close releases the underlying file. Safe to call after exhaustion.
func (s *CSVSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

func parseRecord(rec []string) (domain.MarketEvent, bool) {
	if len(rec) < 4 {
		return domain.MarketEvent{}, false
	}
	ts, ok := parseTimestamp(rec[0])
	if !ok {
		return domain.MarketEvent{}, false
	}
	kind, ok := ParseKind(rec[1])
	if !ok {
		return domain.MarketEvent{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return domain.MarketEvent{}, false
	}
	volume, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err != nil {
		return domain.MarketEvent{}, false
	}
	return domain.MarketEvent{Timestamp: ts, Kind: kind, Price: price, Volume: volume}, true
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if ts, err := time.ParseInLocation(csvTimeLayout, s, time.UTC); err == nil {
		return ts, true
	}
	return time.Time{}, false
}

// ParseKind maps a tick file type column to an event kind.
func ParseKind(s string) (domain.EventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid":
		return domain.EventBid, true
	case "ask":
		return domain.EventAsk, true
	case "trade":
		return domain.EventTrade, true
	default:
		return "", false
	}
}

// OpenDir opens one CSV source per configured security from dir.
func OpenDir(dir string, securities []string) ([]Source, error) {
	sources := make([]Source, 0, len(securities))
	for _, sec := range securities {
		src, err := OpenCSVSource(dir, sec)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
