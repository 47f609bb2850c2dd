package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

// LoadQuietHours reads the quiet-hours policy from prefs.
// Nothing is cached: the result always reflects the persisted state.
func LoadQuietHours(prefs Prefs) domain.QuietHoursPolicy {
	def := domain.DefaultQuietHours()

	mode := domain.QuietHoursMode(prefs.String(KeyQuietHoursMode, string(def.Mode)))
	switch mode {
	case domain.QuietHoursOn, domain.QuietHoursOff, domain.QuietHoursAuto:
	default:
		mode = def.Mode
	}

	return domain.QuietHoursPolicy{
		Locked:       prefs.Bool(KeyLocked, def.Locked),
		Enabled:      prefs.Bool(KeyQuietHoursEnabled, def.Enabled),
		Start:        prefs.minuteOfDay(KeyQuietHoursStart, def.Start),
		End:          prefs.minuteOfDay(KeyQuietHoursEnd, def.End),
		WeekendStart: prefs.minuteOfDay(KeyQuietHoursStartAlt, def.WeekendStart),
		WeekendEnd:   prefs.minuteOfDay(KeyQuietHoursEndAlt, def.WeekendEnd),
		MuteLED:      prefs.Bool(KeyQuietHoursMuteLED, def.MuteLED),
		MuteVibe:     prefs.Bool(KeyQuietHoursMuteVibe, def.MuteVibe),
		ShowIcon:     prefs.Bool(KeyQuietHoursIcon, def.ShowIcon),
		Mode:         mode,
		Interactive:  prefs.Bool(KeyQuietHoursInteractive, def.Interactive),
	}
}

// IsQuietNow reports whether quiet hours are active at now.
//
// Monday to Friday use the weekday window, Saturday and Sunday the weekend
// window. Late Friday hands over to the weekend start when the weekend
// window spans midnight, and late Sunday hands over to the weekday start
// when the weekday window spans midnight. Otherwise quiet hours are off for
// the rest of that day.
func IsQuietNow(qh domain.QuietHoursPolicy, now time.Time) bool {
	if qh.Locked || !qh.Enabled {
		return false
	}

	switch qh.Mode {
	case domain.QuietHoursOn:
		return true
	case domain.QuietHoursOff:
		return false
	}

	curMin := now.Hour()*60 + now.Minute()
	day := now.Weekday()

	start, end := qh.Start, qh.End
	if day == time.Saturday || day == time.Sunday {
		start, end = qh.WeekendStart, qh.WeekendEnd
	}

	switch day {
	case time.Friday:
		if curMin > qh.End {
			if qh.WeekendStart <= qh.WeekendEnd {
				return false
			}
			start = qh.WeekendStart
		}
	case time.Sunday:
		if curMin > qh.WeekendEnd {
			if qh.Start <= qh.End {
				return false
			}
			start = qh.Start
		}
	}

	return InRange(curMin, start, end)
}

// InRange reports whether minute lies in [start, end). A range with
// start > end wraps past midnight; start == end is empty.
func InRange(minute, start, end int) bool {
	switch {
	case start < end:
		return minute >= start && minute < end
	case start > end:
		return minute >= start || minute < end
	default:
		return false
	}
}
