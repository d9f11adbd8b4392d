// Package notify delivers task notifications to configured webhooks.
// Delivery is fire-and-forget: the mutation that produced an event has
// already committed, and delivery failures are logged and dropped.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskledger/internal/config"
)

const (
	defaultTimeout = 5 * time.Second
	defaultBuffer  = 64
)

// Event describes a committed task change worth notifying about.
type Event struct {
	Type    string         `json:"type"`
	TaskID  string         `json:"task_id"`
	ActorID string         `json:"actor_id"`
	TS      string         `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Sender pushes an event to interested parties. Implementations must not
// block the caller and must swallow delivery failures.
type Sender interface {
	Notify(Event)
}

// NopSender discards every event.
type NopSender struct{}

func (NopSender) Notify(Event) {}

// WebhookDispatcher posts events to configured webhook URLs from a
// background goroutine fed by a buffered channel. Shutdown is signalled
// on quit rather than by closing the event channel, so a Notify racing
// Close never panics.
type WebhookDispatcher struct {
	hooks   []hook
	client  *http.Client
	ch      chan Event
	quit    chan struct{}
	done    chan struct{}
	closing sync.Once
}

type hook struct {
	cfg    config.WebhookConfig
	filter eventFilter
}

// StartWebhookDispatcher spawns the delivery goroutine. Returns nil when no
// webhook is enabled, so callers can fall back to a NopSender.
func StartWebhookDispatcher(hooks []config.WebhookConfig) *WebhookDispatcher {
	var enabled []hook
	for _, h := range hooks {
		if h.Enabled != nil && !*h.Enabled {
			continue
		}
		if strings.TrimSpace(h.URL) == "" {
			continue
		}
		enabled = append(enabled, hook{cfg: h, filter: newEventFilter(h.Events)})
	}
	if len(enabled) == 0 {
		return nil
	}
	d := &WebhookDispatcher{
		hooks:  enabled,
		client: &http.Client{Timeout: defaultTimeout},
		ch:     make(chan Event, defaultBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues the event without blocking. When the buffer is full, or
// the dispatcher has been closed, the event is dropped with a warning.
func (d *WebhookDispatcher) Notify(evt Event) {
	select {
	case <-d.quit:
		log.Printf("notify: dispatcher closed, dropping %s event for task %s", evt.Type, evt.TaskID)
		return
	default:
	}
	select {
	case d.ch <- evt:
	default:
		log.Printf("notify: buffer full, dropping %s event for task %s", evt.Type, evt.TaskID)
	}
}

// Close drains pending events and stops the dispatcher. Safe to call more
// than once and concurrently with Notify.
func (d *WebhookDispatcher) Close() {
	d.closing.Do(func() {
		close(d.quit)
		<-d.done
	})
}

func (d *WebhookDispatcher) run() {
	defer close(d.done)
	for {
		select {
		case evt := <-d.ch:
			d.deliver(evt)
		case <-d.quit:
			// Drain whatever was enqueued before the quit signal.
			for {
				select {
				case evt := <-d.ch:
					d.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (d *WebhookDispatcher) deliver(evt Event) {
	for _, h := range d.hooks {
		if !h.filter.match(evt.Type) {
			continue
		}
		if err := d.post(h.cfg, evt); err != nil {
			log.Printf("notify: deliver %s to %s failed: %v", evt.Type, h.cfg.URL, err)
		}
	}
}

func (d *WebhookDispatcher) post(cfg config.WebhookConfig, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Taskledger-Event", evt.Type)
	req.Header.Set("X-Taskledger-Task", evt.TaskID)
	if strings.TrimSpace(cfg.Secret) != "" {
		req.Header.Set("X-Taskledger-Secret", cfg.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
