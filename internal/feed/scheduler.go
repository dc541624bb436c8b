package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/pkg/logger"
)

var schedLogger = logger.Get("FeedSched")

type (
	feedPoller interface {
		PollFeed(context.Context, uuid.UUID) error
	}

	feedListing interface {
		GetAll(database.Queryable) ([]*Feed, error)
	}

	scheduleRule struct {
		name     string
		interval time.Duration
		cancel   context.CancelFunc
	}

	// Scheduler drives the feed poller. It owns one rule per registered
	// feed - a ticker firing at the feeds configured interval - and the
	// registry keeps these rules in lock-step with feed CRUD via
	// UpsertRule/RemoveRule. A poll failure is simply retried on the
	// rules next tick.
	Scheduler struct {
		*sync.Mutex
		db     database.Queryable
		feeds  feedListing
		poller feedPoller

		rules map[uuid.UUID]*scheduleRule
		ctx   context.Context
		wg    sync.WaitGroup
	}
)

func NewScheduler(db database.Queryable, feeds feedListing, poller feedPoller) *Scheduler {
	return &Scheduler{
		Mutex:  &sync.Mutex{},
		db:     db,
		feeds:  feeds,
		poller: poller,
		rules:  make(map[uuid.UUID]*scheduleRule),
	}
}

// Run restores a rule for every feed already present in the registry and
// then blocks until the provided context is cancelled, at which point all
// rules are stopped.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	scheduler.Lock()
	scheduler.ctx = ctx
	scheduler.Unlock()

	feeds, err := scheduler.feeds.GetAll(scheduler.db)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		if err := scheduler.UpsertRule(feed); err != nil {
			return err
		}
	}

	<-ctx.Done()

	scheduler.Lock()
	for id := range scheduler.rules {
		scheduler.rules[id].cancel()
		delete(scheduler.rules, id)
	}
	scheduler.Unlock()

	scheduler.wg.Wait()
	schedLogger.Emit(logger.STOP, "Feed scheduler stopped\n")
	return nil
}

// UpsertRule installs (or replaces) the polling rule for the provided
// feed. The rule name is derived deterministically from the feed ID.
func (scheduler *Scheduler) UpsertRule(feed *Feed) error {
	scheduler.Lock()
	defer scheduler.Unlock()

	if scheduler.ctx == nil {
		return errors.New("cannot install rule before scheduler has started")
	}

	if existing, ok := scheduler.rules[feed.ID]; ok {
		existing.cancel()
		delete(scheduler.rules, feed.ID)
	}

	ruleCtx, cancel := context.WithCancel(scheduler.ctx)
	rule := &scheduleRule{
		name:     RuleName(feed.ID),
		interval: feed.Interval(),
		cancel:   cancel,
	}
	scheduler.rules[feed.ID] = rule

	scheduler.wg.Add(1)
	go scheduler.runRule(ruleCtx, rule, feed.ID)

	schedLogger.Emit(logger.NEW, "Installed rule %s firing every %s\n", rule.name, rule.interval)
	return nil
}

// RemoveRule stops and removes the polling rule for the given feed ID,
// if one exists.
func (scheduler *Scheduler) RemoveRule(feedID uuid.UUID) {
	scheduler.Lock()
	defer scheduler.Unlock()

	if rule, ok := scheduler.rules[feedID]; ok {
		rule.cancel()
		delete(scheduler.rules, feedID)
		schedLogger.Emit(logger.REMOVE, "Removed rule %s\n", rule.name)
	}
}

func (scheduler *Scheduler) runRule(ctx context.Context, rule *scheduleRule, feedID uuid.UUID) {
	defer scheduler.wg.Done()

	ticker := time.NewTicker(rule.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := scheduler.poller.PollFeed(ctx, feedID); err != nil {
				schedLogger.Emit(logger.ERROR, "Poll run for rule %s failed: %v\n", rule.name, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
