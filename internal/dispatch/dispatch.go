// Package dispatch owns the alert queue and the message an overlay is
// currently playing. One message is in flight at a time; client acks advance
// the queue.
package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/observability"
	"github.com/crierhq/crier/internal/protocol"
	"github.com/crierhq/crier/internal/queue"
	"github.com/crierhq/crier/internal/tts"
)

// Transport publishes overlay-bound events. Implementations must not block.
type Transport interface {
	Broadcast(typ protocol.MessageType, msg any)
}

// Config sizes the queue and its admission gates.
type Config struct {
	QueueBound      int
	TwitchRate      int
	YouTubeRate     int
	DuplicateWindow time.Duration
}

// Dispatcher runs the playback state machine: idle until a message is queued,
// then pending until the overlay acknowledges completion.
type Dispatcher struct {
	q         *queue.Queue
	limiters  map[event.Platform]*queue.RateLimiter
	dupes     *queue.DuplicateDetector
	cache     *tts.Cache
	transport Transport
	metrics   *observability.Metrics
	log       *slog.Logger

	mu      sync.Mutex
	current *queue.Message
}

func New(cfg Config, cache *tts.Cache, transport Transport, metrics *observability.Metrics, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		q: queue.New(cfg.QueueBound),
		limiters: map[event.Platform]*queue.RateLimiter{
			event.PlatformTwitch:  queue.NewRateLimiter(cfg.TwitchRate, time.Minute),
			event.PlatformYouTube: queue.NewRateLimiter(cfg.YouTubeRate, time.Minute),
		},
		dupes:     queue.NewDuplicateDetector(cfg.DuplicateWindow),
		cache:     cache,
		transport: transport,
		metrics:   metrics,
		log:       log.With("component", "dispatch"),
	}
}

// Enqueue admits msg through the duplicate and rate gates, queues it and
// starts playback when nothing is in flight. This is the processor's sink.
func (d *Dispatcher) Enqueue(msg queue.Message) bool {
	if d.dupes.IsDuplicate(msg.Text) {
		d.log.Debug("duplicate message rejected", "text", snippet(msg.Text))
		d.metrics.EventsRejected.WithLabelValues("duplicate").Inc()
		return false
	}
	platform := msg.Event.Platform
	if limiter, ok := d.limiters[platform]; ok && !limiter.Allow(string(platform)) {
		d.log.Warn("rate limit exceeded", "platform", platform)
		d.metrics.EventsRejected.WithLabelValues("rate_limited").Inc()
		return false
	}

	d.mu.Lock()
	evicted, ok := d.q.Offer(msg)
	if !ok {
		d.mu.Unlock()
		d.log.Warn("queue full, message rejected", "text", snippet(msg.Text), "priority", msg.Priority)
		d.metrics.EventsRejected.WithLabelValues("queue_full").Inc()
		return false
	}
	if evicted != nil {
		d.log.Warn("queue full, displaced lower priority message", "text", snippet(evicted.Text), "priority", evicted.Priority)
		d.metrics.QueueEvictions.Inc()
	}
	d.metrics.QueueDepth.Set(float64(d.q.Len()))
	d.log.Info("message queued", "text", snippet(msg.Text), "priority", msg.Priority)

	var ready *protocol.TTSReady
	if d.current == nil {
		ready = d.advanceLocked()
	}
	update := d.statusLocked()
	d.mu.Unlock()

	d.broadcastState(update, ready)
	return true
}

// HandlePlayComplete clears the in-flight message when id matches and starts
// the next one. Acks for anything else are stale and ignored.
func (d *Dispatcher) HandlePlayComplete(id string) {
	d.mu.Lock()
	if d.current == nil || d.current.ID != id {
		d.mu.Unlock()
		d.log.Debug("stale playback ack ignored", "id", id)
		return
	}
	d.log.Debug("playback complete", "id", id)
	d.current = nil
	ready := d.advanceLocked()
	update := d.statusLocked()
	d.mu.Unlock()

	d.broadcastState(update, ready)
}

// HandleClientError treats a playback failure as completion so one broken
// artifact cannot stall the queue.
func (d *Dispatcher) HandleClientError(id, detail string) {
	d.log.Error("client playback error", "id", id, "error", detail)
	d.HandlePlayComplete(id)
}

// Skip abandons the in-flight message, tells overlays to stop playing and
// advances.
func (d *Dispatcher) Skip() {
	d.mu.Lock()
	if d.current != nil {
		d.log.Info("skipping message", "id", d.current.ID)
		d.current = nil
	}
	ready := d.advanceLocked()
	update := d.statusLocked()
	d.mu.Unlock()

	d.transport.Broadcast(protocol.TypeSkip, protocol.NewSkip())
	d.broadcastState(update, ready)
}

// Clear drops every queued message. The in-flight message keeps playing.
func (d *Dispatcher) Clear() int {
	d.mu.Lock()
	n := d.q.Drain()
	update := d.statusLocked()
	d.mu.Unlock()

	d.metrics.QueueDepth.Set(0)
	d.log.Info("queue cleared", "dropped", n)
	d.transport.Broadcast(protocol.TypeQueueUpdate, update)
	return n
}

// Kick starts playback if the dispatcher is idle with work queued. Used when
// an overlay announces readiness after a connection gap.
func (d *Dispatcher) Kick() {
	d.mu.Lock()
	if d.current != nil {
		d.mu.Unlock()
		return
	}
	ready := d.advanceLocked()
	if ready == nil {
		d.mu.Unlock()
		return
	}
	update := d.statusLocked()
	d.mu.Unlock()

	d.broadcastState(update, ready)
}

// CurrentReady returns the ready event for the in-flight message, so a
// reconnecting overlay can resume playback.
func (d *Dispatcher) CurrentReady() (protocol.TTSReady, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return protocol.TTSReady{}, false
	}
	return readyFor(*d.current), true
}

// Status snapshots the queue for the control API and the overlay.
func (d *Dispatcher) Status() protocol.QueueUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

// advanceLocked polls until it finds a message whose artifact still exists,
// promotes it to current and returns its ready event. Call with d.mu held.
func (d *Dispatcher) advanceLocked() *protocol.TTSReady {
	for {
		msg, ok := d.q.Poll()
		if !ok {
			d.current = nil
			return nil
		}
		if !d.cache.Has(msg.AudioID) {
			d.log.Warn("audio artifact missing, dropping message", "id", msg.ID, "audio_id", msg.AudioID)
			d.metrics.EventsRejected.WithLabelValues("missing_artifact").Inc()
			continue
		}
		d.current = &msg
		d.metrics.Dispatched.Inc()
		d.metrics.QueueDepth.Set(float64(d.q.Len()))
		d.log.Info("message dispatched", "id", msg.ID, "audio_id", msg.AudioID)
		ready := readyFor(msg)
		return &ready
	}
}

func (d *Dispatcher) statusLocked() protocol.QueueUpdate {
	update := protocol.QueueUpdate{
		Type:    protocol.TypeQueueUpdate,
		Size:    d.q.Len(),
		MaxSize: d.q.Bound(),
		RateLimits: protocol.RateLimits{
			Twitch:  d.limiters[event.PlatformTwitch].Remaining(string(event.PlatformTwitch)),
			YouTube: d.limiters[event.PlatformYouTube].Remaining(string(event.PlatformYouTube)),
		},
	}
	if d.current != nil {
		update.Current = &protocol.QueueEntry{
			ID:        d.current.ID,
			Text:      d.current.Display(),
			Priority:  d.current.Priority,
			EventType: string(d.current.Event.Kind),
			Platform:  string(d.current.Event.Platform),
			CreatedAt: d.current.CreatedAt,
		}
	}
	return update
}

func (d *Dispatcher) broadcastState(update protocol.QueueUpdate, ready *protocol.TTSReady) {
	d.transport.Broadcast(protocol.TypeQueueUpdate, update)
	if ready != nil {
		d.transport.Broadcast(protocol.TypeTTSReady, *ready)
	}
}

func readyFor(msg queue.Message) protocol.TTSReady {
	return protocol.TTSReady{
		Type:      protocol.TypeTTSReady,
		ID:        msg.ID,
		AudioID:   msg.AudioID,
		Text:      msg.Display(),
		EventType: string(msg.Event.Kind),
		Platform:  string(msg.Event.Platform),
	}
}

// snippet shortens message text for log lines.
func snippet(text string) string {
	const max = 50
	if runes := []rune(text); len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return text
}
