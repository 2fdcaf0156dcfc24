package server

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

	"clearline/internal/config"
	"clearline/internal/domain"
	"clearline/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookTimeout      = 5 * time.Second
	webhookBatchSize    = 100
)

// webhookDispatcher tails the event log and posts matching events to the
// configured endpoints. Each hook keeps its own cursor; delivery failures
// stall that hook until the endpoint recovers.
type webhookDispatcher struct {
	engine engine.Engine
	hooks  []config.WebhookConfig
	client *http.Client

	mu      sync.Mutex
	cursors map[int]int64
}

// StartWebhooks launches the dispatcher goroutine when webhooks are
// configured. It never returns an error; misconfigured hooks only log.
func StartWebhooks(e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	d := &webhookDispatcher{
		engine:  e,
		hooks:   e.Config.Webhooks,
		client:  &http.Client{Timeout: webhookTimeout},
		cursors: make(map[int]int64),
	}
	go d.run()
}

func (d *webhookDispatcher) run() {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		for i, hook := range d.hooks {
			if hook.Enabled != nil && !*hook.Enabled {
				continue
			}
			if strings.TrimSpace(hook.URL) == "" {
				continue
			}
			d.deliverPending(i, hook)
		}
		<-ticker.C
	}
}

func (d *webhookDispatcher) deliverPending(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	events, err := d.engine.Repo.EventsAfter(ctx, webhookBatchSize, d.cursor(idx), "")
	if err != nil {
		log.Printf("webhook: fetch events failed: %v", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if filter.match(evt.Type) {
			if err := d.post(ctx, hook, evt); err != nil {
				log.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
				return
			}
		}
		d.advance(idx, evt.ID)
	}
}

func (d *webhookDispatcher) cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[idx]
}

func (d *webhookDispatcher) advance(idx int, id int64) {
	d.mu.Lock()
	d.cursors[idx] = id
	d.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *webhookDispatcher) post(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		ProjectID:  evt.ProjectID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clearline-Event", evt.Type)
	req.Header.Set("X-Clearline-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Clearline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
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
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
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
