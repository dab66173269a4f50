package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSender delivers messages by POSTing each one as JSON to a push
// endpoint, authenticated with a bearer key.
type HTTPSender struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

// NewHTTPSender creates a sender for the given endpoint and key.
func NewHTTPSender(endpoint, apiKey string) *HTTPSender {
	return &HTTPSender{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendEach posts every message, recording per-message outcomes. It only
// returns an error when the context is cancelled; individual delivery
// failures are reported in the batch response.
func (s *HTTPSender) SendEach(ctx context.Context, msgs []*Message) (*BatchResponse, error) {
	batch := &BatchResponse{Responses: make([]SendResponse, len(msgs))}
	for i, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		err := s.send(ctx, msg)
		if err != nil {
			batch.FailureCount++
			batch.Responses[i] = SendResponse{Err: err}
			continue
		}
		batch.SuccessCount++
		batch.Responses[i] = SendResponse{Success: true}
	}
	return batch, nil
}

func (s *HTTPSender) send(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(map[string]*Message{"message": msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
