package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fitfriends/backend/internal/logging"
	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/realtime"
)

// Table is the change-stream table the feed listens to.
const Table = "posts"

// resyncPoll is how often a resync retries while another fetch holds the slot.
const resyncPoll = 10 * time.Millisecond

var (
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("feed closed")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("feed already started")
)

// Subscriber opens change subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filter *realtime.Filter) (*realtime.Subscription, error)
}

// Recorder receives feed metrics.
type Recorder interface {
	FeedFetched(kind string, err error)
	FeedAttached(delta int)
}

// UpdateKind names a change to the window.
type UpdateKind string

const (
	UpdateReset     UpdateKind = "reset"
	UpdateAppended  UpdateKind = "appended"
	UpdatePrepended UpdateKind = "prepended"
	UpdateReplaced  UpdateKind = "replaced"
	UpdateRemoved   UpdateKind = "removed"
)

// Update describes one change to the window, delivered to the listener.
type Update struct {
	Kind    UpdateKind    `json:"kind"`
	Posts   []models.Post `json:"posts,omitempty"`
	PostID  string        `json:"postId,omitempty"`
	HasMore bool          `json:"hasMore"`
}

// Snapshot is a point-in-time copy of the feed state.
type Snapshot struct {
	Posts         []models.Post
	IsLoading     bool
	IsLoadingMore bool
	HasMore       bool
	Initialized   bool
}

// Options configures a Feed.
type Options struct {
	ViewerID string
	Pager    *Pager
	Changes  Subscriber
	// Listener is called after every window change, outside the feed lock.
	Listener func(Update)
	Recorder Recorder
	Logger   *slog.Logger
}

// Feed is a deduplicated window of posts for one viewer, filled by keyset
// pages and kept current by the posts change stream.
type Feed struct {
	viewerID string
	pager    *Pager
	changes  Subscriber
	listener func(Update)
	recorder Recorder
	logger   *slog.Logger

	// fetching is held by the single in-flight page fetch.
	fetching atomic.Bool

	mu          sync.Mutex
	posts       []models.Post
	cursor      *models.Cursor
	hasMore     bool
	initialized bool
	loading     bool
	loadingMore bool

	lifeMu    sync.Mutex
	started   bool
	closed    bool
	sub       *realtime.Subscription
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New constructs an idle Feed. Call Load to fill it and Start to go live.
func New(opts Options) *Feed {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		viewerID: opts.ViewerID,
		pager:    opts.Pager,
		changes:  opts.Changes,
		listener: opts.Listener,
		recorder: opts.Recorder,
		logger:   logger.With(slog.String("viewerId", opts.ViewerID)),
	}
}

// Snapshot returns a copy of the current window and flags.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Posts:         append([]models.Post(nil), f.posts...),
		IsLoading:     f.loading,
		IsLoadingMore: f.loadingMore,
		HasMore:       f.hasMore,
		Initialized:   f.initialized,
	}
}

// Load resets the window and fetches the first page. It is a no-op while
// another fetch is in flight.
func (f *Feed) Load(ctx context.Context) error {
	if !f.fetching.CompareAndSwap(false, true) {
		return nil
	}
	defer f.fetching.Store(false)
	return f.loadFirst(ctx, "initial")
}

// loadFirst replaces the window with page one. The caller holds fetching.
func (f *Feed) loadFirst(ctx context.Context, kind string) error {
	ctx, span := logging.StartSpan(ctx, "feed.Load")
	defer span.End()

	f.setLoading(true, false)
	page, err := f.pager.Page(ctx, f.viewerID, nil)
	f.record(kind, err)
	if err != nil {
		f.setLoading(false, false)
		return err
	}

	f.mu.Lock()
	f.posts = append([]models.Post(nil), page.Posts...)
	f.cursor = page.Next
	f.hasMore = page.HasMore
	f.initialized = true
	f.loading = false
	update := Update{Kind: UpdateReset, Posts: append([]models.Post(nil), f.posts...), HasMore: f.hasMore}
	f.mu.Unlock()

	f.emit(update)
	return nil
}

// Refresh discards the window and cursor and refetches the first page.
func (f *Feed) Refresh(ctx context.Context) error {
	return f.Load(ctx)
}

// LoadMore appends the page after the cursor. It is a no-op while another
// fetch is in flight, when no more pages are known, or before Load.
func (f *Feed) LoadMore(ctx context.Context) error {
	if !f.fetching.CompareAndSwap(false, true) {
		return nil
	}
	defer f.fetching.Store(false)

	f.mu.Lock()
	if !f.initialized || !f.hasMore || f.cursor == nil {
		f.mu.Unlock()
		return nil
	}
	cursor := *f.cursor
	f.loadingMore = true
	f.mu.Unlock()

	ctx, span := logging.StartSpan(ctx, "feed.LoadMore")
	defer span.End()

	page, err := f.pager.Page(ctx, f.viewerID, &cursor)
	f.record("more", err)
	if err != nil {
		f.setLoading(false, false)
		return err
	}

	f.mu.Lock()
	appended := make([]models.Post, 0, len(page.Posts))
	for _, post := range page.Posts {
		if f.indexOf(post.ID) >= 0 {
			continue
		}
		f.posts = append(f.posts, post)
		appended = append(appended, post)
	}
	if page.Next != nil {
		f.cursor = page.Next
	}
	f.hasMore = page.HasMore
	f.loadingMore = false
	update := Update{Kind: UpdateAppended, Posts: appended, HasMore: f.hasMore}
	f.mu.Unlock()

	f.emit(update)
	return nil
}

// Start subscribes to post changes and applies them until Close.
func (f *Feed) Start(ctx context.Context) error {
	if f.changes == nil {
		return errors.New("feed: no change subscriber configured")
	}

	f.lifeMu.Lock()
	defer f.lifeMu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if f.started {
		return ErrAlreadyStarted
	}

	sub, err := f.changes.Subscribe(ctx, Table, nil)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", Table, err)
	}

	liveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.sub = sub
	f.cancel = cancel
	f.done = make(chan struct{})
	f.started = true
	if f.recorder != nil {
		f.recorder.FeedAttached(1)
	}

	go f.consume(liveCtx, sub, f.done)
	return nil
}

// Close detaches the change subscription and waits for the consumer to exit.
// Later calls do nothing.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.lifeMu.Lock()
		f.closed = true
		sub, cancel, done, started := f.sub, f.cancel, f.done, f.started
		f.lifeMu.Unlock()

		if !started {
			return
		}

		cancel()
		sub.Close()
		<-done

		if f.recorder != nil {
			f.recorder.FeedAttached(-1)
		}
	})
}

func (f *Feed) consume(ctx context.Context, sub *realtime.Subscription, done chan struct{}) {
	defer close(done)
	for change := range sub.Events() {
		f.apply(ctx, change)
		if sub.Overflowed() {
			f.resync(ctx)
		}
	}
}

// resync reloads page one after the subscription dropped changes, since a
// lost delete or update cannot be recovered from the stream. Unlike Load it
// waits for an in-flight fetch instead of being dropped.
func (f *Feed) resync(ctx context.Context) {
	ticker := time.NewTicker(resyncPoll)
	defer ticker.Stop()
	for !f.fetching.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
	defer f.fetching.Store(false)

	f.logger.Warn("post changes were dropped, reloading window")
	_ = f.loadFirst(ctx, "resync")
}

func (f *Feed) apply(ctx context.Context, change realtime.Change) {
	var post models.Post
	if err := change.Decode(&post); err != nil || post.ID == "" {
		f.logger.Warn("ignoring malformed post change", "event", change.Event, "error", err)
		return
	}

	switch change.Event {
	case realtime.EventInsert:
		f.applyInsert(ctx, post)
	case realtime.EventDelete:
		f.applyDelete(post.ID)
	case realtime.EventUpdate:
		f.applyUpdate(ctx, post)
	}
}

// applyInsert prepends the post without re-sorting the window.
func (f *Feed) applyInsert(ctx context.Context, post models.Post) {
	if !post.VisibleTo(f.viewerID) {
		return
	}

	f.mu.Lock()
	present := f.indexOf(post.ID) >= 0
	f.mu.Unlock()
	if present {
		return
	}

	posts := []models.Post{post}
	f.pager.attachProfiles(ctx, posts)

	f.mu.Lock()
	if f.indexOf(post.ID) >= 0 {
		f.mu.Unlock()
		return
	}
	window := make([]models.Post, 0, len(f.posts)+1)
	window = append(window, posts[0])
	f.posts = append(window, f.posts...)
	update := Update{Kind: UpdatePrepended, Posts: posts, HasMore: f.hasMore}
	f.mu.Unlock()

	f.emit(update)
}

func (f *Feed) applyDelete(id string) {
	f.mu.Lock()
	idx := f.indexOf(id)
	if idx < 0 {
		f.mu.Unlock()
		return
	}
	f.posts = append(f.posts[:idx], f.posts[idx+1:]...)
	update := Update{Kind: UpdateRemoved, PostID: id, HasMore: f.hasMore}
	f.mu.Unlock()

	f.emit(update)
}

// applyUpdate replaces a post already in the window, or removes it when the
// viewer may no longer see it.
func (f *Feed) applyUpdate(ctx context.Context, post models.Post) {
	if !post.VisibleTo(f.viewerID) {
		f.applyDelete(post.ID)
		return
	}

	f.mu.Lock()
	present := f.indexOf(post.ID) >= 0
	f.mu.Unlock()
	if !present {
		return
	}

	posts := []models.Post{post}
	f.pager.attachProfiles(ctx, posts)

	f.mu.Lock()
	idx := f.indexOf(post.ID)
	if idx < 0 {
		f.mu.Unlock()
		return
	}
	f.posts[idx] = posts[0]
	update := Update{Kind: UpdateReplaced, Posts: posts, HasMore: f.hasMore}
	f.mu.Unlock()

	f.emit(update)
}

// indexOf must be called with mu held.
func (f *Feed) indexOf(id string) int {
	for i := range f.posts {
		if f.posts[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *Feed) setLoading(loading, loadingMore bool) {
	f.mu.Lock()
	f.loading = loading
	f.loadingMore = loadingMore
	f.mu.Unlock()
}

func (f *Feed) record(kind string, err error) {
	if err != nil {
		f.logger.Error("fetch feed page", "kind", kind, "error", err)
	}
	if f.recorder != nil {
		f.recorder.FeedFetched(kind, err)
	}
}

func (f *Feed) emit(update Update) {
	if f.listener != nil {
		f.listener(update)
	}
}
