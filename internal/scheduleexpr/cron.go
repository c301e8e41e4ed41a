// Package scheduleexpr expands a Task's schedule_kind/schedule_expr into
// concrete fire times. Only cron is implemented — the remaining kinds are
// accepted at storage time and rejected here with ErrUnsupportedSchedule.
package scheduleexpr

import (
	"fmt"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// parse embeds the IANA zone into the expression the way robfig/cron expects
// ("CRON_TZ=<zone> <expr>") so Next() walks wall-clock time in that zone,
// handling DST forward gaps and backward folds the same way the zone's own
// clock does.
func parse(expr, zone string) (cron.Schedule, error) {
	if zone == "" {
		zone = "UTC"
	}
	sched, err := parser.Parse(fmt.Sprintf("CRON_TZ=%s %s", zone, expr))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCronExpr, err)
	}
	return sched, nil
}

// Expand returns every fire time in [windowStart, windowEnd], inclusive of
// both ends, matching the task's schedule. robfig/cron's Next always returns
// strictly after its argument, so the walk starts one second before
// windowStart to avoid silently dropping a fire that lands exactly on it.
func Expand(kind domain.ScheduleKind, expr, zone string, windowStart, windowEnd time.Time) ([]time.Time, error) {
	if kind != domain.KindCron {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSchedule, kind)
	}
	sched, err := parse(expr, zone)
	if err != nil {
		return nil, err
	}

	var due []time.Time
	cursor := windowStart.Add(-time.Second)
	for {
		next := sched.Next(cursor)
		if next.IsZero() || next.After(windowEnd) {
			break
		}
		due = append(due, next.UTC())
		cursor = next
	}
	return due, nil
}

// Validate reports whether expr parses for the given kind/zone without
// computing any fire times — used by the admin API to reject a bad
// expression at registration time rather than at the next enqueue pass.
func Validate(kind domain.ScheduleKind, expr, zone string) error {
	if kind != domain.KindCron {
		return nil
	}
	_, err := parse(expr, zone)
	return err
}

// NextAfter returns the first fire time strictly after reference.
func NextAfter(kind domain.ScheduleKind, expr, zone string, reference time.Time) (time.Time, error) {
	if kind != domain.KindCron {
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedSchedule, kind)
	}
	sched, err := parse(expr, zone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(reference).UTC(), nil
}
