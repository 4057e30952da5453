package heartbeat

import (
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// State holds the runtime bookkeeping for one session's heartbeat block,
// as named in spec §4.5: lastEveryRunAtMs, lastAtRunDate, and a
// missingWorkflowWarned set.
type State struct {
	LastEveryRunAt map[string]time.Time
	LastAtRunDate  map[string]string // workflow -> "2006-01-02" of its last `at` fire
	WarnedMissing  map[string]bool
}

// NewState returns an empty State.
func NewState() *State {
	return &State{
		LastEveryRunAt: make(map[string]time.Time),
		LastAtRunDate:  make(map[string]string),
		WarnedMissing:  make(map[string]bool),
	}
}

// DueRun pairs a Run with the context it should carry when fired.
type DueRun struct {
	Run Run
}

// DueRuns resolves which runs in b are due at tick time now, given the
// block's interval and the session's running State. A run with none of
// always/every/at/on set defaults to always (handled at parse time).
// Calling DueRuns twice with the same now for a rate-limited run (every/at)
// returns it due the first time and not due the second, since the first
// call already advances State (spec §8: heartbeat idempotency).
func DueRuns(b Block, now time.Time, st *State) []DueRun {
	if b.Empty() {
		return nil
	}
	if len(b.Runs) == 0 {
		// Plain-text-only block: one heartbeat per tick, no workflow name.
		return []DueRun{{Run: Run{}}}
	}

	interval := time.Duration(b.IntervalMinutes) * time.Minute
	var due []DueRun
	for _, r := range b.Runs {
		if !onGateOpen(r.On, now) {
			continue
		}
		switch {
		case r.Always:
			due = append(due, DueRun{Run: r})
		case r.Every != "":
			if everyDue(r, now, interval, st) {
				due = append(due, DueRun{Run: r})
			}
		case r.At != "":
			if atDue(r, now, interval, st) {
				due = append(due, DueRun{Run: r})
			}
		}
	}
	return due
}

// everyDue reports whether at least r.Every has elapsed since this
// workflow's last "every" fire, and — if so — records now as the new
// last-fire time.
func everyDue(r Run, now time.Time, fallback time.Duration, st *State) bool {
	dur, err := parseEvery(r.Every)
	if err != nil {
		dur = fallback
	}
	last, seen := st.LastEveryRunAt[r.Workflow]
	if seen && now.Sub(last) < dur {
		return false
	}
	st.LastEveryRunAt[r.Workflow] = now
	return true
}

// parseEvery parses "N", "Nm", or "Nh" as a duration (bare N means minutes).
func parseEvery(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "h"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Hour, nil
	case strings.HasSuffix(s, "m"):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "m"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Minute, nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Minute, nil
	}
}

// atDue reports whether now lags the scheduled HH:MM by [0, interval)
// minutes and the workflow hasn't already fired today.
func atDue(r Run, now time.Time, interval time.Duration, st *State) bool {
	parts := strings.SplitN(r.At, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	lag := now.Sub(scheduled)
	if lag < 0 || lag >= interval {
		return false
	}
	today := now.Format("2006-01-02")
	if st.LastAtRunDate[r.Workflow] == today {
		return false
	}
	st.LastAtRunDate[r.Workflow] = today
	return true
}

// onGateOpen reports whether now's day-of-week satisfies the `on=` gate.
// An empty gate always passes. Day-of-week matching is expressed as a
// weekly rrule so that "daily|weekdays|weekends|<day-list>" share one
// evaluation path instead of a hand-rolled switch per case.
func onGateOpen(on string, now time.Time) bool {
	on = strings.ToLower(strings.TrimSpace(on))
	if on == "" || on == "daily" {
		return true
	}

	var days []rrule.Weekday
	switch on {
	case "weekdays":
		days = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case "weekends":
		days = []rrule.Weekday{rrule.SA, rrule.SU}
	default:
		for _, name := range splitDayList(on) {
			if wd, ok := dayByName[name]; ok {
				days = append(days, wd)
			}
		}
		if len(days) == 0 {
			return true // unrecognized gate: fail open rather than silently never firing
		}
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: days,
		Dtstart:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
	})
	if err != nil {
		return true
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	return len(rule.Between(dayStart, dayEnd, true)) > 0
}

var dayByName = map[string]rrule.Weekday{
	"monday":    rrule.MO,
	"tuesday":   rrule.TU,
	"wednesday": rrule.WE,
	"thursday":  rrule.TH,
	"friday":    rrule.FR,
	"saturday":  rrule.SA,
	"sunday":    rrule.SU,
}

func splitDayList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
