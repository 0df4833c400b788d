package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pbench/internal/config"
)

const (
	userAgent = "pbench-index/1"
	// ntfy rejects message bodies above 4096 bytes.
	maxMessageBytes = 4000
)

// RunSummary is the end-of-run report of one indexing pass.
type RunSummary struct {
	RunName  string
	Subject  string
	Body     string
	Indexed  int
	Erred    int
	Skipped  int
	Duration time.Duration
}

// Service defines the notification surface exposed to the indexer.
type Service interface {
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyRunAborted(ctx context.Context, runName string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	tags := []string{"pbench", "index", "completed"}
	priority := ""
	if summary.Erred > 0 || summary.Skipped > 0 {
		tags = []string{"pbench", "index", "warning"}
		priority = "high"
	}

	message := strings.TrimSpace(summary.Body)
	if message == "" {
		message = summary.Subject
	}
	if summary.Duration > 0 {
		message = fmt.Sprintf("%s\n\nElapsed: %s", message, summary.Duration.Round(time.Second))
	}
	data := payload{
		title:    fmt.Sprintf("%s - %s", summary.RunName, summary.Subject),
		message:  truncate(message, maxMessageBytes),
		tags:     tags,
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunAborted(ctx context.Context, runName string, err error) error {
	var builder strings.Builder
	builder.WriteString("Indexing run aborted")
	if err != nil {
		builder.WriteString(": ")
		builder.WriteString(strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    fmt.Sprintf("%s - Aborted", runName),
		message:  builder.String(),
		tags:     []string{"pbench", "index", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "pbench-index - Test",
		message:  "Notification system test",
		tags:     []string{"pbench", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func truncate(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	cut := message[:limit]
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "\n..."
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
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

func (noopService) NotifyRunCompleted(context.Context, RunSummary) error  { return nil }
func (noopService) NotifyRunAborted(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
