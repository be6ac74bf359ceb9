package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forklinehq/forkline/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com/v1"

// ProviderSubscription is the provider's current view of a subscription,
// fetched when an event only carries an ID.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
}

// ProviderClient fetches subscription detail from the payment provider.
type ProviderClient interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}

// StripeClient talks to the Stripe API over plain HTTP.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *StripeClient) FetchSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, errors.New("subscription id is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	url := strings.TrimRight(c.APIBaseURL, "/") + "/subscriptions/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("subscription fetch failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw struct {
		ID                 string `json:"id"`
		Customer           string `json:"customer"`
		Status             string `json:"status"`
		CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
		CurrentPeriodStart int64  `json:"current_period_start"`
		CurrentPeriodEnd   int64  `json:"current_period_end"`
		TrialEnd           int64  `json:"trial_end"`
		Items              struct {
			Data []struct {
				Price struct {
					ID string `json:"id"`
				} `json:"price"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("subscription response missing id")
	}

	out := &ProviderSubscription{
		ID:                 strings.TrimSpace(raw.ID),
		CustomerID:         strings.TrimSpace(raw.Customer),
		Status:             strings.ToLower(strings.TrimSpace(raw.Status)),
		CancelAtPeriodEnd:  raw.CancelAtPeriodEnd,
		CurrentPeriodStart: unixToTime(raw.CurrentPeriodStart),
		CurrentPeriodEnd:   unixToTime(raw.CurrentPeriodEnd),
		TrialEnd:           unixToTime(raw.TrialEnd),
	}
	if len(raw.Items.Data) > 0 {
		out.PriceID = strings.TrimSpace(raw.Items.Data[0].Price.ID)
	}
	return out, nil
}
