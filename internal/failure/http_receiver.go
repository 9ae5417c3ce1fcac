package failure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vietddude/streamkeeper/internal/core/domain"
)

// HTTPReceiver delivers messages by POSTing them as JSON to a URL.
// Any non-2xx response is a delivery failure.
type HTTPReceiver struct {
	url    string
	client *http.Client
}

type httpPayload struct {
	ID       string            `json:"id"`
	Event    string            `json:"event"`
	Data     string            `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewHTTPReceiver creates a receiver for url with the given request timeout.
func NewHTTPReceiver(url string, timeout time.Duration) *HTTPReceiver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReceiver{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReceiver) Handle(ctx context.Context, msg *domain.Message) error {
	body, err := json.Marshal(httpPayload{
		ID:       msg.ID,
		Event:    msg.EventName,
		Data:     string(msg.Payload),
		Metadata: msg.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("receiver responded with status %d", resp.StatusCode)
	}
	return nil
}
