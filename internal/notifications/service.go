package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streamsync/internal/config"
)

const userAgent = "streamsync/1.0"

// Event identifies a notification type.
type Event string

const (
	EventCycleCompleted Event = "cycle_completed"
	EventMergeFailed    Event = "merge_failed"
	EventPublishFailed  Event = "publish_failed"
	EventError          Event = "error"
	EventTest           Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		cycleFailures:   cfg.Notifications.CycleFailures,
		publishWarnings: cfg.Notifications.PublishWarnings,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	cycleFailures   bool
	publishWarnings bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventCycleCompleted:
		failed := payload.count("failed")
		if !n.cycleFailures || failed == 0 {
			return message{}, false
		}
		body := fmt.Sprintf("Cycle finished: %d updated, %d retained, %d failed",
			payload.count("updated"), payload.count("retained"), failed)
		if channels := payload.list("failed_channels"); len(channels) > 0 {
			body += "\nFailed: " + strings.Join(channels, ", ")
		}
		return message{
			title: "streamsync - Channels Failed",
			body:  body,
			tags:  []string{"streamsync", "cycle", "warning"},
		}, true
	case EventMergeFailed:
		if !n.publishWarnings {
			return message{}, false
		}
		return message{
			title: "streamsync - Merge Failed",
			body:  "Master playlist not refreshed: " + payload.text("error"),
			tags:  []string{"streamsync", "merge", "warning"},
		}, true
	case EventPublishFailed:
		if !n.publishWarnings {
			return message{}, false
		}
		return message{
			title:    "streamsync - Publish Failed",
			body:     "Playlists not pushed: " + payload.text("error"),
			tags:     []string{"streamsync", "git", "warning"},
			priority: "high",
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" during ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if text := payload.text("error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "streamsync - Error",
			body:     b.String(),
			tags:     []string{"streamsync", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "streamsync - Test",
			body:     "Notification system test",
			tags:     []string{"streamsync", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if err, ok := v.(error); ok {
		return strings.TrimSpace(err.Error())
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) list(key string) []string {
	v, _ := p[key].([]string)
	return v
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
