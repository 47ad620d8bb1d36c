package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitfriends/backend/internal/models"
	"github.com/fitfriends/backend/internal/realtime"
)

// Table is the change-stream table notifications are published on.
const Table = "notifications"

var (
	// ErrDispatcherClosed is returned by Enqueue once Shutdown has been called.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
	// ErrQueueFull is returned by Enqueue when every queue slot is taken.
	ErrQueueFull = errors.New("notification queue full")
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, notification models.Notification) error
}

// Config controls the concurrency characteristics of the dispatcher.
type Config struct {
	QueueSize int
	Workers   int
}

// Dispatcher writes notifications in the background so callers never wait on them.
type Dispatcher struct {
	store     Store
	publisher realtime.Publisher
	logger    *slog.Logger
	onFailure func(stage string)

	jobs   chan models.Notification
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	now    func() time.Time
}

// NewDispatcher starts the worker pool. publisher and onFailure may be nil.
func NewDispatcher(store Store, publisher realtime.Publisher, cfg Config, logger *slog.Logger, onFailure func(stage string)) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger,
		onFailure: onFailure,
		jobs:      make(chan models.Notification, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		now:       func() time.Time { return time.Now().UTC() },
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules a notification for delivery. It never waits for a queue
// slot; a full queue yields ErrQueueFull.
func (d *Dispatcher) Enqueue(ctx context.Context, notification models.Notification) error {
	if notification.UserID == "" {
		return errors.New("notification recipient must be provided")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	default:
	}

	select {
	case d.jobs <- notification:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for in-flight deliveries to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.cancel()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			d.drain()
			return
		case notification := <-d.jobs:
			d.deliver(notification)
		}
	}
}

// drain delivers whatever was queued before shutdown.
func (d *Dispatcher) drain() {
	for {
		select {
		case notification := <-d.jobs:
			d.deliver(notification)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(notification models.Notification) {
	if d.store == nil {
		d.logger.Error("notification dispatcher missing store")
		d.failed("store")
		return
	}

	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = d.now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.store.Create(ctx, notification); err != nil {
		d.logger.Error("persist notification", "type", notification.Type, "userId", notification.UserID, "error", err)
		d.failed("store")
		return
	}

	if d.publisher == nil {
		return
	}

	if err := d.publish(ctx, notification); err != nil {
		d.logger.Warn("publish notification", "notificationId", notification.ID, "error", err)
		d.failed("publish")
	}
}

func (d *Dispatcher) publish(ctx context.Context, notification models.Notification) error {
	change, err := realtime.NewChange(realtime.EventInsert, Table, notification)
	if err != nil {
		return err
	}
	if err := d.publisher.Publish(ctx, change); err != nil {
		return fmt.Errorf("publish %s change: %w", Table, err)
	}
	return nil
}

func (d *Dispatcher) failed(stage string) {
	if d.onFailure != nil {
		d.onFailure(stage)
	}
}
