package feed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/mmsim/internal/domain"
	"github.com/alanyoungcy/mmsim/internal/feed"
)

func writeTicks(t *testing.T, dir, security, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, security+".csv"), []byte(data), 0o600))
}

func drain(t *testing.T, src feed.Source) []domain.MarketEvent {
	t.Helper()
	var events []domain.MarketEvent
	for {
		ev, err := src.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, domain.ErrFeedClosed)
			return events
		}
		events = append(events, ev)
	}
}

func TestCSVSourceParsesRows(t *testing.T) {
	dir := t.TempDir()
	writeTicks(t, dir, "EMAAR", `timestamp,type,price,volume
2024-06-03 11:00:00,BID,10.00,200
2024-06-03T11:00:01Z,ask,10.10,200
2024-06-03 11:00:02,Trade,10.00,300
`)

	src, err := feed.OpenCSVSource(dir, "EMAAR")
	require.NoError(t, err)
	assert.Equal(t, "EMAAR", src.Security())

	events := drain(t, src)
	require.Len(t, events, 3)

	assert.Equal(t, domain.EventBid, events[0].Kind)
	assert.Equal(t, time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC), events[0].Timestamp)
	assert.Equal(t, 10.00, events[0].Price)
	assert.Equal(t, 200.0, events[0].Volume)

	assert.Equal(t, domain.EventAsk, events[1].Kind)
	assert.True(t, events[1].Timestamp.Equal(time.Date(2024, 6, 3, 11, 0, 1, 0, time.UTC)))

	assert.Equal(t, domain.EventTrade, events[2].Kind)

	// Exhausted sources keep reporting closed.
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedClosed)
}

func TestCSVSourceSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	writeTicks(t, dir, "ALDAR", `2024-06-03 11:00:00,BID,10.00,200
not-a-timestamp,BID,10.00,200
2024-06-03 11:00:01,LIMIT,10.00,200
2024-06-03 11:00:02,TRADE,abc,200
2024-06-03 11:00:03,TRADE,10.05,50
`)

	src, err := feed.OpenCSVSource(dir, "ALDAR")
	require.NoError(t, err)

	events := drain(t, src)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventBid, events[0].Kind)
	assert.Equal(t, domain.EventTrade, events[1].Kind)
	assert.Equal(t, 10.05, events[1].Price)
}

func TestCSVSourceMissingFile(t *testing.T) {
	_, err := feed.OpenCSVSource(t.TempDir(), "GHOST")
	assert.Error(t, err)
}

func TestCSVSourceRespectsContext(t *testing.T) {
	dir := t.TempDir()
	writeTicks(t, dir, "EMAAR", "2024-06-03 11:00:00,BID,10.00,200\n")

	src, err := feed.OpenCSVSource(dir, "EMAAR")
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenDir(t *testing.T) {
	dir := t.TempDir()
	writeTicks(t, dir, "EMAAR", "2024-06-03 11:00:00,BID,10.00,200\n")
	writeTicks(t, dir, "ALDAR", "2024-06-03 11:00:00,ASK,3.10,500\n")

	sources, err := feed.OpenDir(dir, []string{"ALDAR", "EMAAR"})
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "ALDAR", sources[0].Security())
	assert.Equal(t, "EMAAR", sources[1].Security())

	_, err = feed.OpenDir(dir, []string{"EMAAR", "GHOST"})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]domain.EventKind{
		"BID":   domain.EventBid,
		" ask ": domain.EventAsk,
		"Trade": domain.EventTrade,
	} {
		kind, ok := feed.ParseKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, kind)
	}

	_, ok := feed.ParseKind("quote")
	assert.False(t, ok)
}

func TestSliceSource(t *testing.T) {
	events := []domain.MarketEvent{
		{Timestamp: time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC), Kind: domain.EventBid, Price: 10.00, Volume: 200},
		{Timestamp: time.Date(2024, 6, 3, 11, 0, 1, 0, time.UTC), Kind: domain.EventTrade, Price: 10.00, Volume: 50},
	}
	src := feed.NewSliceSource("EMAAR", events)

	assert.Equal(t, "EMAAR", src.Security())
	assert.Equal(t, 2, src.Len())

	got := drain(t, src)
	assert.Equal(t, events, got)
}
