package snapshot

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

const maxLookback = 2 * 366 * 24 * time.Hour

var (
	ErrInvalidKind     = errors.New("snapshot kind must be daily or weekly")
	ErrInvalidSchedule = errors.New("invalid snapshot schedule")
)

// LastPeriod returns the most recent completed period of the cron schedule,
// bounded by the last two fire times at or before now.
func LastPeriod(spec string, now time.Time) (Period, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return Period{}, errors.Wrapf(ErrInvalidSchedule, "%q: %v", spec, err)
	}
	now = now.UTC()

	for lookback := time.Hour; lookback <= maxLookback; lookback *= 2 {
		var prev, last time.Time
		for t := sched.Next(now.Add(-lookback)); !t.IsZero() && !t.After(now); t = sched.Next(t) {
			prev, last = last, t
		}
		if !prev.IsZero() {
			return Period{From: prev, To: last}, nil
		}
	}

	return Period{}, errors.Wrapf(ErrInvalidSchedule, "%q fires too rarely", spec)
}
