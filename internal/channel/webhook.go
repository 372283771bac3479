package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Webhook posts deliveries to a gateway endpoint that fronts the actual
// SMS/review providers. The gateway answers {"id": "..."} on success.
type Webhook struct {
	Endpoint string
	HTTP     *http.Client
}

func NewWebhook(endpoint string) *Webhook {
	return &Webhook{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: 15 * time.Second},
	}
}

type delivery struct {
	Kind     string `json:"kind"`
	To       string `json:"to,omitempty"`
	ReviewID string `json:"review_id,omitempty"`
	Body     string `json:"body"`
}

func (w *Webhook) Send(ctx context.Context, to, body string) (string, error) {
	return w.post(ctx, delivery{Kind: "message", To: to, Body: body})
}

func (w *Webhook) ReplyReview(ctx context.Context, reviewID, body string) (string, error) {
	return w.post(ctx, delivery{Kind: "review_reply", ReviewID: reviewID, Body: body})
}

// Ack needs no outbound call; it mints a local reference so executions of
// alert-type actions still carry an id.
func (w *Webhook) Ack(ctx context.Context, kind, message string) (string, error) {
	return "ack-" + uuid.New().String(), nil
}

func (w *Webhook) post(ctx context.Context, d delivery) (string, error) {
	if w.Endpoint == "" {
		return "", fmt.Errorf("channel: endpoint not configured")
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	httpClient := w.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("channel: status %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.ID == "" {
		// Gateways that answer 2xx without a body still count as delivered.
		return "delivery-" + uuid.New().String(), nil
	}
	return out.ID, nil
}
