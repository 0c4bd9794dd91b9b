package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Outcome is the part of a run report that goes into a notification.
type Outcome struct {
	RunID        string
	Succeeded    bool
	Stage        string
	ErrorCode    string
	Cause        string
	ArtifactPath string
	Rows         int
	Duration     time.Duration
}

// Notifier posts run outcomes to an ntfy topic URL.
type Notifier struct {
	Client   *http.Client
	Endpoint string
}

// New returns nil when endpoint is empty so callers can skip notifications.
func New(endpoint string, client *http.Client) *Notifier {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return &Notifier{Client: client, Endpoint: endpoint}
}

// Notify sends the outcome. A nil Notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, o Outcome) error {
	if n == nil {
		return nil
	}
	title, priority, tags := "pendsync run succeeded", "default", "white_check_mark"
	if !o.Succeeded {
		title, priority, tags = "pendsync run failed", "high", "warning"
	}
	return send(ctx, n.Client, n.Endpoint, Message(o), map[string]string{
		"Title":    title,
		"Priority": priority,
		"Tags":     tags,
	})
}

// Message renders the outcome as the notification body.
func Message(o Outcome) string {
	var b strings.Builder
	if o.Succeeded {
		fmt.Fprintf(&b, "Run %s published %d rows", o.RunID, o.Rows)
		if o.ArtifactPath != "" {
			fmt.Fprintf(&b, " from %s", o.ArtifactPath)
		}
	} else {
		fmt.Fprintf(&b, "Run %s failed at %s", o.RunID, o.Stage)
		if o.ErrorCode != "" {
			fmt.Fprintf(&b, " [%s]", o.ErrorCode)
		}
		if o.Cause != "" {
			fmt.Fprintf(&b, ": %s", o.Cause)
		}
	}
	if o.Duration > 0 {
		fmt.Fprintf(&b, " (%s)", o.Duration.Round(time.Millisecond))
	}
	return b.String()
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return send(ctx, client, endpoint, message, nil)
}

func send(ctx context.Context, client *http.Client, endpoint, message string, headers map[string]string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
