package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"taskledger/internal/config"
)

type capture struct {
	mu     sync.Mutex
	events []Event
	secret string
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt Event
		_ = json.NewDecoder(r.Body).Decode(&evt)
		c.mu.Lock()
		c.events = append(c.events, evt)
		c.secret = r.Header.Get("X-Taskledger-Secret")
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (c *capture) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestDispatcherDeliversAndFilters(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	d := StartWebhookDispatcher([]config.WebhookConfig{
		{URL: srv.URL, Secret: "hush", Events: []string{"ASSIGNED"}},
	})
	if d == nil {
		t.Fatal("dispatcher should start with an enabled hook")
	}
	d.Notify(Event{Type: "ASSIGNED", TaskID: "t1", ActorID: "admin", TS: "2025-01-01T00:00:00Z"})
	d.Notify(Event{Type: "STATUS_CHANGED", TaskID: "t1", ActorID: "admin", TS: "2025-01-01T00:00:01Z"})
	d.Close()

	got := cap.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered event, got %d: %+v", len(got), got)
	}
	if got[0].Type != "ASSIGNED" || got[0].TaskID != "t1" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
	cap.mu.Lock()
	secret := cap.secret
	cap.mu.Unlock()
	if secret != "hush" {
		t.Fatalf("secret header missing, got %q", secret)
	}
}

func TestDispatcherMatchAllWhenNoEvents(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	d := StartWebhookDispatcher([]config.WebhookConfig{{URL: srv.URL}})
	if d == nil {
		t.Fatal("dispatcher should start")
	}
	d.Notify(Event{Type: "ASSIGNED", TaskID: "a"})
	d.Notify(Event{Type: "STATUS_CHANGED", TaskID: "b"})
	d.Close()

	if got := cap.snapshot(); len(got) != 2 {
		t.Fatalf("expected both events, got %d", len(got))
	}
}

func TestDispatcherSkipsDisabledHooks(t *testing.T) {
	off := false
	if d := StartWebhookDispatcher([]config.WebhookConfig{
		{URL: "https://example.test", Enabled: &off},
		{URL: "   "},
	}); d != nil {
		d.Close()
		t.Fatal("no enabled hooks should yield a nil dispatcher")
	}
}

func TestNotifyAfterCloseDropsEvent(t *testing.T) {
	var cap capture
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	d := StartWebhookDispatcher([]config.WebhookConfig{{URL: srv.URL}})
	if d == nil {
		t.Fatal("dispatcher should start")
	}
	d.Notify(Event{Type: "ASSIGNED", TaskID: "before"})
	d.Close()
	// In-flight request handlers can still call Notify while shutdown
	// runs; late events must be dropped, never panic.
	d.Notify(Event{Type: "ASSIGNED", TaskID: "after"})
	d.Close()

	got := cap.snapshot()
	if len(got) != 1 || got[0].TaskID != "before" {
		t.Fatalf("expected only the pre-close event, got %+v", got)
	}
}

func TestEventFilter(t *testing.T) {
	if !newEventFilter(nil).match("ANYTHING") {
		t.Fatal("empty filter must match everything")
	}
	f := newEventFilter([]string{"ASSIGNED", " "})
	if !f.match("ASSIGNED") || f.match("STATUS_CHANGED") {
		t.Fatal("filter mismatch")
	}
}
