package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// APIError is a non-success answer from the platform.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking api: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("booking api: status %d: %s", e.Status, e.Message)
}

type Options struct {
	BaseURL      string
	PartnerToken string
	UserToken    string
	CompanyID    string
	Timeout      time.Duration
}

type Client struct {
	baseURL      string
	partnerToken string
	userToken    string
	companyID    string
	httpClient   *http.Client
	logger       *zap.Logger
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		partnerToken: opts.PartnerToken,
		userToken:    opts.UserToken,
		companyID:    opts.CompanyID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// envelope is the platform's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    struct {
		Message string `json:"message"`
	} `json:"meta"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	auth := "Bearer " + c.partnerToken
	if c.userToken != "" {
		auth += ", User " + c.userToken
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Booking API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Meta.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) companyPath(suffix string) string {
	return fmt.Sprintf("/company/%s/%s", c.companyID, suffix)
}

func (c *Client) ListServices(ctx context.Context) ([]Service, error) {
	var services []Service
	if err := c.do(ctx, http.MethodGet, c.companyPath("services"), nil, &services); err != nil {
		return nil, fmt.Errorf("booking.ListServices: %w", err)
	}
	return services, nil
}

func (c *Client) ListSubscriptionTypes(ctx context.Context) ([]SubscriptionType, error) {
	var types []SubscriptionType
	if err := c.do(ctx, http.MethodGet, c.companyPath("subscription_types"), nil, &types); err != nil {
		return nil, fmt.Errorf("booking.ListSubscriptionTypes: %w", err)
	}
	return types, nil
}

// FindSubscriptionType looks for a type with exactly this composition and
// cost. The second result is false when none exists.
func (c *Client) FindSubscriptionType(ctx context.Context, composition Composition, cost int64) (SubscriptionType, bool, error) {
	types, err := c.ListSubscriptionTypes(ctx)
	if err != nil {
		return SubscriptionType{}, false, err
	}
	t, ok := FindMatching(types, composition, cost)
	return t, ok, nil
}

func (c *Client) CreateSubscriptionType(ctx context.Context, req CreateSubscriptionTypeRequest) (SubscriptionType, error) {
	var created SubscriptionType
	if err := c.do(ctx, http.MethodPost, c.companyPath("subscription_types"), req, &created); err != nil {
		return SubscriptionType{}, fmt.Errorf("booking.CreateSubscriptionType: %w", err)
	}

	c.logger.Info("Subscription type created",
		zap.String("id", created.ID),
		zap.String("title", created.Title),
		zap.Int64("cost", created.Cost))
	return created, nil
}
