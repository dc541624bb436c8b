package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/webflix/webflix/internal/database"
	"github.com/webflix/webflix/internal/event"
	"github.com/webflix/webflix/internal/video"
	"github.com/webflix/webflix/pkg/logger"
)

var pollLogger = logger.Get("FeedPoller")

// ErrMalformedFeed indicates the feeds URL did not return a parseable
// media RSS document.
var ErrMalformedFeed = errors.New("feed document is malformed")

// maxFeedDocumentBytes bounds how much of a feed response we are willing
// to read in to memory.
const maxFeedDocumentBytes = 16 << 20

type (
	videoCreator interface {
		Create(database.Queryable, *video.Video) error
	}

	feedLookup interface {
		Get(database.Queryable, uuid.UUID) (*Feed, error)
		AdvanceLastPolled(database.Queryable, uuid.UUID) error
	}

	// Poller fetches a registered feeds media RSS document and turns any
	// previously-unseen items in to pending video records. Newly created
	// records are announced over the event bus for the transcode submitter
	// to pick up; the poller itself never blocks on submission.
	Poller struct {
		db         database.Queryable
		feeds      feedLookup
		videos     videoCreator
		httpClient *http.Client
		eventBus   event.EventDispatcher
	}
)

func NewPoller(db database.Queryable, feeds feedLookup, videos videoCreator, eventBus event.EventDispatcher) *Poller {
	return &Poller{
		db:         db,
		feeds:      feeds,
		videos:     videos,
		httpClient: http.DefaultClient,
		eventBus:   eventBus,
	}
}

// PollFeed runs one poll for the feed with the given ID:
//   - the feed is looked up (ErrFeedNotFound aborts the run),
//   - its URL is fetched and parsed as media RSS (failure aborts the run
//     WITHOUT advancing last_polled; the scheduler will retry on its next tick),
//   - each item with an acceptable MP4 rendition is inserted unless a video
//     with the same source URL already exists,
//   - finally last_polled is advanced, even when zero new items were found.
func (poller *Poller) PollFeed(ctx context.Context, feedID uuid.UUID) error {
	feed, err := poller.feeds.Get(poller.db, feedID)
	if err != nil {
		return err
	}

	parsed, err := poller.fetchDocument(ctx, feed.URL)
	if err != nil {
		return err
	}

	created := 0
	for _, item := range parsed.Channel.Items {
		selected := item.selectContent()
		if selected == nil {
			pollLogger.Emit(logger.DEBUG, "Skipping item '%s' of %s: no acceptable MP4 rendition\n", item.Title, feed)
			continue
		}

		newVideo := &video.Video{
			ID:          uuid.New(),
			Title:       valueOrDefault(item.Title, video.DefaultTitle),
			Description: item.Description,
			SourceType:  video.SourceMRSS,
			SourceID:    &feed.ID,
			SourceURL:   selected.URL,
			Status:      video.StatusPending,
		}

		if err := poller.videos.Create(poller.db, newVideo); err != nil {
			if errors.Is(err, video.ErrVideoExists) {
				continue
			}

			return fmt.Errorf("failed to ingest item '%s' of %s: %w", item.Title, feed, err)
		}

		created++
		pollLogger.Emit(logger.NEW, "Ingested item '%s' of %s as %s\n", item.Title, feed, newVideo)
		poller.eventBus.Dispatch(event.VideoCreatedEvent, newVideo.ID)
	}

	if err := poller.feeds.AdvanceLastPolled(poller.db, feedID); err != nil {
		return err
	}

	pollLogger.Emit(logger.INFO, "Poll of %s complete (%d new videos)\n", feed, created)
	poller.eventBus.Dispatch(event.FeedPolledEvent, feedID)
	return nil
}

func (poller *Poller) fetchDocument(ctx context.Context, url string) (*mrssDocument, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to construct feed request: %w", err)
	}

	response, err := poller.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned unexpected status %d", url, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxFeedDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}

	parsed, err := parseMRSS(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	return parsed, nil
}

func valueOrDefault(value string, dflt string) string {
	if value == "" {
		return dflt
	}

	return value
}
