package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// Stripe implements Provider against the Stripe REST API using its
// form-encoded request convention.
type Stripe struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
}

// NewStripe constructs a Stripe adapter with a bounded request timeout.
func NewStripe(secretKey, baseURL string, timeout time.Duration) (*Stripe, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("payment: stripe secret key is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Stripe{
		SecretKey: strings.TrimSpace(secretKey),
		BaseURL:   strings.TrimSpace(baseURL),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// CreateCustomer registers a customer with Stripe, tagging it with the local user id.
func (s *Stripe) CreateCustomer(ctx context.Context, params CustomerParams) (Customer, error) {
	form := url.Values{}
	if email := strings.TrimSpace(params.Email); email != "" {
		form.Set("email", email)
	}
	form.Set("metadata[user_id]", params.UserID)

	var out struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := s.postForm(ctx, "/v1/customers", form, &out); err != nil {
		return Customer{}, err
	}
	if out.ID == "" {
		return Customer{}, errors.New("payment: stripe returned customer without id")
	}
	return Customer{ID: out.ID, Email: out.Email}, nil
}

// CreateCheckoutSession creates a hosted checkout session in payment mode.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, params SessionParams) (Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("customer", params.CustomerID)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("line_items[0][quantity]", strconv.FormatInt(params.Quantity, 10))
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.UnitAmount, 10))
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	form.Set("metadata[order_id]", params.Metadata.OrderID)
	form.Set("metadata[user_id]", params.Metadata.UserID)
	form.Set("metadata[product_code]", params.Metadata.ProductCode)
	if params.Metadata.PostID != "" {
		form.Set("metadata[post_id]", params.Metadata.PostID)
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := s.postForm(ctx, "/v1/checkout/sessions", form, &out); err != nil {
		return Session{}, err
	}
	if out.ID == "" || out.URL == "" {
		return Session{}, errors.New("payment: stripe returned incomplete checkout session")
	}
	return Session{ID: out.ID, URL: out.URL}, nil
}

func (s *Stripe) postForm(ctx context.Context, path string, form url.Values, out any) error {
	base := s.BaseURL
	if base == "" {
		base = defaultStripeBaseURL
	}
	endpoint := strings.TrimRight(base, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("payment: stripe request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payment: read stripe response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("payment: stripe %s returned %d: %s", path, resp.StatusCode, stripeErrorMessage(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("payment: decode stripe response: %w", err)
	}
	return nil
}

func stripeErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
