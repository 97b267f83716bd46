package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steveyegge/medic/internal/metrics"
	"github.com/steveyegge/medic/internal/types"
)

// Analyzer consumes captured events
type Analyzer interface {
	HandleEvent(ctx context.Context, event types.ErrorEvent)
}

// HubConfig holds hub configuration
type HubConfig struct {
	Analyzer  Analyzer
	QueueSize int // Default: 256
	Workers   int // Default: 4
	Logger    *slog.Logger
}

type queued struct {
	channel string
	event   types.ErrorEvent
}

// Hub fans events from registered channels into a bounded queue drained by
// a worker pool. Capturing never blocks: when the queue is full the event is
// dropped.
type Hub struct {
	analyzer Analyzer
	workers  int
	queue    chan queued
	logger   *slog.Logger

	mu      sync.Mutex
	unsubs  map[string]func()
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// sendMu guards closing the queue against concurrent sends
	sendMu sync.RWMutex
	closed bool
}

// NewHub creates a hub. Call Start before events can be analyzed.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		analyzer: cfg.Analyzer,
		workers:  cfg.Workers,
		queue:    make(chan queued, cfg.QueueSize),
		logger:   cfg.Logger.With("component", "capture"),
		unsubs:   make(map[string]func()),
	}, nil
}

// Register subscribes the hub to ch. Channel names must be unique.
func (h *Hub) Register(ch FailureChannel) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := ch.Name()
	if _, exists := h.unsubs[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	h.unsubs[name] = ch.Subscribe(func(event types.ErrorEvent) {
		h.enqueue(name, event)
	})
	h.logger.Debug("registered failure channel", "channel", name)
	return nil
}

// Channels returns the registered channel names
func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.unsubs))
	for name := range h.unsubs {
		names = append(names, name)
	}
	return names
}

// Pending returns the number of queued events
func (h *Hub) Pending() int {
	return len(h.queue)
}

func (h *Hub) enqueue(channel string, event types.ErrorEvent) {
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()
	if h.closed {
		metrics.CapturesDropped.WithLabelValues(channel).Inc()
		h.logger.Warn("hub stopping, dropping event", "channel", channel, "event_id", event.ID)
		return
	}

	metrics.CapturesTotal.WithLabelValues(channel).Inc()
	select {
	case h.queue <- queued{channel: channel, event: event}:
		metrics.QueueDepth.Inc()
	default:
		metrics.CapturesDropped.WithLabelValues(channel).Inc()
		h.logger.Warn("capture queue full, dropping event",
			"channel", channel, "event_id", event.ID, "message", event.Summary())
	}
}

// Start launches the worker pool
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("hub already started")
	}
	h.started = true

	ctx, h.cancel = context.WithCancel(ctx)
	for i := 0; i < h.workers; i++ {
		h.wg.Add(1)
		go h.work(ctx, i)
	}
	h.logger.Info("capture hub started", "workers", h.workers, "queue_size", cap(h.queue))
	return nil
}

func (h *Hub) work(ctx context.Context, id int) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-h.queue:
			if !ok {
				return
			}
			metrics.QueueDepth.Dec()
			h.analyze(ctx, id, item)
		}
	}
}

func (h *Hub) analyze(ctx context.Context, worker int, item queued) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("analyzer panicked", "worker", worker, "channel", item.channel,
				"event_id", item.event.ID, "panic", r)
		}
	}()
	h.analyzer.HandleEvent(ctx, item.event)
}

// Stop unsubscribes every channel, lets workers drain the queue and waits
// for them until ctx is done. Events still queued when ctx expires are lost.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	for name, unsub := range h.unsubs {
		unsub()
		delete(h.unsubs, name)
	}
	h.mu.Unlock()

	h.sendMu.Lock()
	if h.closed {
		h.sendMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.queue)
	h.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.logger.Info("capture hub stopped")
		return nil
	case <-ctx.Done():
		h.cancel()
		return fmt.Errorf("hub stop: %w", ctx.Err())
	}
}
