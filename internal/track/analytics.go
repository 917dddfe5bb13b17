package track

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AnalyticsClient posts attempt lifecycle events to the analytics collector.
// Callers treat it as fire and forget; an error only ever reaches a log line.
type AnalyticsClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewAnalyticsClient(endpoint string) *AnalyticsClient {
	return &AnalyticsClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *AnalyticsClient) Track(ctx context.Context, event string, props map[string]any) error {
	if c.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event":      event,
		"properties": props,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics http=%d", resp.StatusCode)
	}
	return nil
}
