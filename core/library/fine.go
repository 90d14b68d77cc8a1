package library

import (
	"math"
	"time"
)

// RenewalIncrementDays is the fixed due-date extension per renewal. It is
// applied to the current due date, not to "now", so repeated lateness never
// resets the clock.
const RenewalIncrementDays = 7

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalcFine computes the overdue fine at day granularity: time-of-day is
// ignored and the fine starts accruing the calendar day after the due date.
//
// The same function backs both the fine locked in at return time and the
// live "fine if returned today" estimate shown on listings; the two figures
// diverge as days pass, which is intentional.
func CalcFine(dueDate, now time.Time, rate int) (daysOverdue, fine int) {
	due := StartOfDay(dueDate)
	today := StartOfDay(now)
	if !today.After(due) {
		return 0, 0
	}
	daysOverdue = int(math.Ceil(today.Sub(due).Hours() / 24))
	return daysOverdue, daysOverdue * rate
}
