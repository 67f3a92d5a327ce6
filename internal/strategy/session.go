package strategy

import (
	"fmt"
	"time"
)

// Session is the exchange trading window. Entries are only accepted
// while the window is open; exits are always accepted.
type Session struct {
	openMinute  int // minutes from midnight, inclusive
	closeMinute int // minutes from midnight, exclusive
	loc         *time.Location
}

// NewSession builds a session from "HH:MM" open/close times in the
// given IANA timezone (NSE: 09:15-15:30, Asia/Kolkata).
func NewSession(open, close, timezone string) (*Session, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid session timezone %q: %w", timezone, err)
	}
	openMin, err := parseHHMM(open)
	if err != nil {
		return nil, fmt.Errorf("invalid session open time: %w", err)
	}
	closeMin, err := parseHHMM(close)
	if err != nil {
		return nil, fmt.Errorf("invalid session close time: %w", err)
	}
	if openMin >= closeMin {
		return nil, fmt.Errorf("session open %s must be before close %s", open, close)
	}
	return &Session{openMinute: openMin, closeMinute: closeMin, loc: loc}, nil
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("time %q is not HH:MM: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsOpen reports whether t falls inside the exchange session
// (weekdays only).
func (s *Session) IsOpen(t time.Time) bool {
	lt := t.In(s.loc)
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minute := lt.Hour()*60 + lt.Minute()
	return minute >= s.openMinute && minute < s.closeMinute
}

// SquareOffDue reports whether t is inside the session but within
// `lead` of the close, the window in which intraday positions are
// force-exited.
func (s *Session) SquareOffDue(t time.Time, lead time.Duration) bool {
	if !s.IsOpen(t) {
		return false
	}
	lt := t.In(s.loc)
	minute := lt.Hour()*60 + lt.Minute()
	return minute >= s.closeMinute-int(lead.Minutes())
}
