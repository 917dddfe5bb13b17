package track

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// AffiliateClient reports confirmed conversions for attribution. Same
// contract as analytics: best effort, never blocks a payment outcome.
type AffiliateClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewAffiliateClient(endpoint, apiKey string) *AffiliateClient {
	return &AffiliateClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *AffiliateClient) Conversion(ctx context.Context, sessionID, orderID string, amount int64, currency string) error {
	if c.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"sessionId": sessionID,
		"orderId":   orderID,
		"amount":    amount,
		"currency":  currency,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("affiliate http=%d", resp.StatusCode)
	}
	return nil
}
