package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jamm-events/backend/config"
	"github.com/jamm-events/backend/internal/models"
)

// Client talks to the checkout-redirect payment provider. A preference
// is created per order; the buyer is sent to its redirect URL and the
// provider calls back with the result.
type Client struct {
	baseURL     string
	accessToken string
	currency    string

	successURL string
	failureURL string
	pendingURL string
	notifyURL  string

	hc     *http.Client
	logger *zap.Logger
}

// NewClient creates the payment provider client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	return &Client{
		baseURL:     strings.TrimRight(cfg.Payment.BaseURL, "/"),
		accessToken: cfg.Payment.AccessToken,
		currency:    cfg.Checkout.Currency,
		successURL:  base + cfg.Payment.SuccessPath,
		failureURL:  base + cfg.Payment.FailurePath,
		pendingURL:  base + cfg.Payment.PendingPath,
		notifyURL:   cfg.CallbackURL(),
		hc: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

type preferenceItem struct {
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CurrencyID string          `json:"currency_id"`
}

type preferenceRequest struct {
	Items             []preferenceItem `json:"items"`
	Payer             preferencePayer  `json:"payer"`
	BackURLs          preferenceBacks  `json:"back_urls"`
	AutoReturn        string           `json:"auto_return"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

type preferencePayer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type preferenceBacks struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference registers the order with the provider and returns
// the buyer redirect URL.
func (c *Client) CreatePreference(ctx context.Context, req models.PaymentRequest) (string, error) {
	items := make([]preferenceItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, preferenceItem{
			Title:      it.Title,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			CurrencyID: c.currency,
		})
	}
	metadata := map[string]any{
		"event_id": req.EventID.String(),
	}
	if req.RRPPCode != nil {
		metadata["rrpp"] = *req.RRPPCode
	}
	if req.Fingerprint != "" {
		metadata["device_fingerprint"] = req.Fingerprint
	}

	body, err := json.Marshal(preferenceRequest{
		Items: items,
		Payer: preferencePayer{Email: req.BuyerEmail, Name: req.BuyerName},
		BackURLs: preferenceBacks{
			Success: c.successURL,
			Failure: c.failureURL,
			Pending: c.pendingURL,
		},
		AutoReturn:        "approved",
		ExternalReference: req.ExternalReference.String(),
		NotificationURL:   c.notifyURL,
		Metadata:          metadata,
	})
	if err != nil {
		return "", fmt.Errorf("marshal preference: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create preference: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("preference rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("external_reference", req.ExternalReference.String()))
		return "", fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var pref preferenceResponse
	if err := json.Unmarshal(raw, &pref); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if pref.InitPoint == "" {
		return "", fmt.Errorf("provider returned no redirect url")
	}
	return pref.InitPoint, nil
}

// GetPayment fetches the current state of a provider payment, used to
// verify webhook notifications against the provider rather than
// trusting the callback body.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.PaymentResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	var payload struct {
		ID                json.Number `json:"id"`
		Status            string      `json:"status"`
		ExternalReference string      `json:"external_reference"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	return DecodeResult(payload.ID.String(), payload.Status, payload.ExternalReference)
}
