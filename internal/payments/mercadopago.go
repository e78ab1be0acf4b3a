// Package payments talks to Mercado Pago. A checkout preference is created
// per reservation; the user pays off-site and comes back through the return
// URLs (or, in production, through the signed webhook).
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ulisao/NuevoAnden/internal/config"
)

var (
	// ErrMisconfigured means no gateway credential is configured.
	ErrMisconfigured = errors.New("payment gateway not configured")
	// ErrGateway wraps provider call failures and malformed responses.
	ErrGateway = errors.New("payment gateway error")
)

const (
	requestTimeout  = 10 * time.Second
	preferencesPath = "/checkout/preferences"
	// Query parameter names of the return callback contract.
	statusParam      = "status"
	reservationParam = "reservationId"
)

// Return callback statuses supplied by the provider redirect.
const (
	ReturnStatusSuccess = "success"
	ReturnStatusFailure = "failure"
	ReturnStatusPending = "pending"
)

type Client struct {
	accessToken string
	apiBase     string
	currency    string
	httpClient  *http.Client
}

func NewClient(cfg config.PaymentsConfig) *Client {
	return &Client{
		accessToken: strings.TrimSpace(cfg.AccessToken),
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		currency:    cfg.Currency,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
}

// PreferenceRequest describes the single line item of a reservation payment.
type PreferenceRequest struct {
	ReservationID string
	Title         string
	Amount        float64
	ReturnBaseURL string
}

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type preferenceBody struct {
	Items    []preferenceItem   `json:"items"`
	BackURLs preferenceBackURLs `json:"back_urls"`
	// Echoed back on payment notifications; set to the reservation id so
	// the webhook can find the reservation without a second mapping.
	ExternalReference string `json:"external_reference"`
	// Omitted for local development hosts: the provider rejects
	// auto_return pointing at localhost.
	AutoReturn string `json:"auto_return,omitempty"`
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference registers a payment intent with the provider and returns
// the redirect URL the user must visit to pay. It mutates no local state:
// the reservation must already exist as pending_payment so the slot is held
// while the user is off-site.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (string, error) {
	if c.accessToken == "" {
		return "", ErrMisconfigured
	}

	base := strings.TrimRight(strings.TrimSpace(req.ReturnBaseURL), "/")
	body := preferenceBody{
		Items: []preferenceItem{{
			ID:         req.ReservationID,
			Title:      req.Title,
			Quantity:   1,
			UnitPrice:  req.Amount,
			CurrencyID: c.currency,
		}},
		BackURLs: preferenceBackURLs{
			Success: returnURL(base, ReturnStatusSuccess, req.ReservationID),
			Failure: returnURL(base, ReturnStatusFailure, req.ReservationID),
			Pending: returnURL(base, ReturnStatusPending, req.ReservationID),
		},
		ExternalReference: req.ReservationID,
	}
	if !isLocalHost(base) {
		body.AutoReturn = "approved"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: encode preference: %v", ErrGateway, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+preferencesPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", uuid.NewString())

	log.Ctx(ctx).Info().
		Str("reservation_id", req.ReservationID).
		Str("return_base", base).
		Bool("auto_return", body.AutoReturn != "").
		Msg("Creating payment preference")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: provider returned %d: %s", ErrGateway, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var pref preferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pref); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	if pref.InitPoint == "" {
		return "", fmt.Errorf("%w: response has no redirect target", ErrGateway)
	}
	return pref.InitPoint, nil
}

// Payment is the subset of the provider's payment resource the webhook
// confirmation path needs.
type Payment struct {
	ID                int64  `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

// PaymentStatusApproved is the provider status that confirms a reservation.
const PaymentStatusApproved = "approved"

// GetPayment fetches a payment by provider id, used to resolve webhook
// notifications back to a reservation.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (Payment, error) {
	if c.accessToken == "" {
		return Payment{}, ErrMisconfigured
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: build request: %v", ErrGateway, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Payment{}, fmt.Errorf("%w: provider returned %d: %s", ErrGateway, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payment Payment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return Payment{}, fmt.Errorf("%w: decode payment: %v", ErrGateway, err)
	}
	return payment, nil
}

func returnURL(base, status, reservationID string) string {
	return fmt.Sprintf("%s/payments/return?%s=%s&%s=%s", base, statusParam, status, reservationParam, reservationID)
}

// isLocalHost reports whether the return URL points at a development host.
func isLocalHost(baseURL string) bool {
	return strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1")
}
