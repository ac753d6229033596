package config

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock HH:MM in some location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24h "HH:MM" string.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("must be HH:MM (24h), got %q", raw)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// CronSpec returns the standard 5-field cron expression firing daily at t.
func (t TimeOfDay) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}
