package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/mmsim/internal/session"
)

func at(h, m, s int) time.Time {
	return time.Date(2024, 6, 3, h, m, s, 0, time.UTC)
}

func TestClassifyBoundaries(t *testing.T) {
	sched := session.Default()

	cases := []struct {
		name string
		ts   time.Time
		want session.Phase
	}{
		{"before opening auction", at(9, 29, 59), session.PhasePreOpen},
		{"opening auction start", at(9, 30, 0), session.PhaseOpeningAuction},
		{"opening auction end", at(9, 59, 59), session.PhaseOpeningAuction},
		{"silent start", at(10, 0, 0), session.PhaseSilent},
		{"silent end", at(10, 4, 59), session.PhaseSilent},
		{"continuous start", at(10, 5, 0), session.PhaseContinuous},
		{"continuous end", at(14, 44, 59), session.PhaseContinuous},
		{"closing auction start", at(14, 45, 0), session.PhaseClosingAuction},
		{"close time is inclusive", at(15, 0, 0), session.PhaseClosingAuction},
		{"after close", at(15, 0, 1), session.PhasePostClose},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sched.Classify(tc.ts), "phase of %s", tc.ts)
		})
	}
}

func TestAtOrAfterEODCutoff(t *testing.T) {
	sched := session.Default()

	assert.False(t, sched.AtOrAfterEODCutoff(at(14, 54, 59)))
	assert.True(t, sched.AtOrAfterEODCutoff(at(14, 55, 0)))
	assert.True(t, sched.AtOrAfterEODCutoff(at(15, 30, 0)))
}

func TestSameDayAndDateOf(t *testing.T) {
	a := at(9, 30, 0)
	b := at(15, 0, 0)
	c := a.AddDate(0, 0, 1)

	assert.True(t, session.SameDay(a, b))
	assert.False(t, session.SameDay(a, c))

	d := session.DateOf(b)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.June, d.Month())
	assert.Equal(t, 3, d.Day())
	assert.Equal(t, 0, d.Hour())
}
