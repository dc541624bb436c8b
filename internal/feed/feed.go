package feed

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrFeedNotFound = errors.New("feed does not exist")
)

// Feed is one row per registered poll source. ScheduleRule holds the name
// of the scheduler rule driving this feeds polling, kept in lock-step with
// the feed itself by the registry.
type Feed struct {
	ID              uuid.UUID  `db:"id"`
	Name            string     `db:"name"`
	URL             string     `db:"url"`
	IntervalMinutes int        `db:"interval_minutes"`
	ScheduleRule    string     `db:"schedule_rule"`
	LastPolled      *time.Time `db:"last_polled"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// Interval returns the poll interval as a duration.
func (feed *Feed) Interval() time.Duration {
	return time.Duration(feed.IntervalMinutes) * time.Minute
}

func (feed *Feed) String() string {
	return fmt.Sprintf("Feed{id=%s name=%s interval=%dm}", feed.ID, feed.Name, feed.IntervalMinutes)
}

// RuleName derives the deterministic scheduler rule name for a feed ID.
func RuleName(feedID uuid.UUID) string {
	return fmt.Sprintf("mrss-feed-%s", feedID)
}
