package feed

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/database"
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (store *Store) Create(db database.Queryable, feed *Feed) error {
	_, err := db.NamedExec(`
		INSERT INTO feeds(id, name, url, interval_minutes, schedule_rule, last_polled, created_at, updated_at)
		VALUES(:id, :name, :url, :interval_minutes, :schedule_rule, NULL, current_timestamp, current_timestamp)
	`, feed)
	if err != nil {
		return fmt.Errorf("failed to insert feed: %w", err)
	}

	return nil
}

func (store *Store) Get(db database.Queryable, id uuid.UUID) (*Feed, error) {
	var feed Feed
	if err := db.Get(&feed, `SELECT * FROM feeds WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFeedNotFound
		}

		return nil, fmt.Errorf("failed to select feed %s: %w", id, err)
	}

	return &feed, nil
}

func (store *Store) GetAll(db database.Queryable) ([]*Feed, error) {
	var feeds []*Feed
	if err := db.Select(&feeds, `SELECT * FROM feeds ORDER BY created_at ASC`); err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	return feeds, nil
}

func (store *Store) Update(db database.Queryable, feed *Feed) error {
	result, err := db.NamedExec(`
		UPDATE feeds
		SET name=:name, url=:url, interval_minutes=:interval_minutes, schedule_rule=:schedule_rule, updated_at=current_timestamp
		WHERE id=:id
	`, feed)
	if err != nil {
		return fmt.Errorf("failed to update feed %s: %w", feed.ID, err)
	}

	return requireOneRow(result)
}

func (store *Store) Delete(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`DELETE FROM feeds WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feed %s: %w", id, err)
	}

	return requireOneRow(result)
}

// AdvanceLastPolled moves the feeds last-polled marker to the current
// time. Called after every successful poll run, including runs which
// discovered zero new items.
func (store *Store) AdvanceLastPolled(db database.Queryable, id uuid.UUID) error {
	result, err := db.Exec(`UPDATE feeds SET last_polled=current_timestamp, updated_at=current_timestamp WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to advance last_polled of feed %s: %w", id, err)
	}

	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected row count: %w", err)
	}
	if affected == 0 {
		return ErrFeedNotFound
	}

	return nil
}
