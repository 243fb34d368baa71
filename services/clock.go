package services

import (
	"time"
	_ "time/tzdata"

	"github.com/cppla/lifesignal/models"
)

// ScheduledLocal overlays hour:minute (seconds zeroed) on the calendar date that now has in loc.
// Wall times that fall in a DST gap are normalized by time.Date to a real instant.
func ScheduledLocal(now time.Time, loc *time.Location, hour, minute int) time.Time {
	l := now.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), hour, minute, 0, 0, loc)
}

// IsDue reports 0 <= nowLocal - scheduledLocal < window.
func IsDue(nowLocal, scheduledLocal time.Time, window time.Duration) bool {
	diff := nowLocal.Sub(scheduledLocal)
	return diff >= 0 && diff < window
}

// DueCheck is the result of evaluating one person at one instant.
type DueCheck struct {
	Due          bool
	ScheduledFor time.Time // local, in the person's zone
	LocalDay     string
}

// EvaluateDue resolves today's scheduled instant for p and whether now falls in its window.
func EvaluateDue(p models.MonitoredPerson, now time.Time, window time.Duration) (DueCheck, error) {
	loc, err := p.Location()
	if err != nil {
		return DueCheck{}, err
	}
	hour, minute, err := models.ParseClock(p.CheckinTime)
	if err != nil {
		return DueCheck{}, err
	}
	scheduled := ScheduledLocal(now, loc, hour, minute)
	return DueCheck{
		Due:          IsDue(now.In(loc), scheduled, window),
		ScheduledFor: scheduled,
		LocalDay:     scheduled.Format(models.LocalDayLayout),
	}, nil
}

// LocalDayOf returns the calendar day of now in the person's zone.
func LocalDayOf(p models.MonitoredPerson, now time.Time) (string, error) {
	loc, err := p.Location()
	if err != nil {
		return "", err
	}
	return now.In(loc).Format(models.LocalDayLayout), nil
}
