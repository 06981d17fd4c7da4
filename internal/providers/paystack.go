package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gigbook/backend/internal/models"
)

const PaystackName = "paystack"

// PaystackConfig configures the HTTP provider.
type PaystackConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Paystack authenticates callbacks with an HMAC-SHA256 over the event fields
// and verifies references with the provider's transaction API.
type Paystack struct {
	cfg    PaystackConfig
	client *http.Client
}

func NewPaystack(cfg PaystackConfig, client *http.Client) *Paystack {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Paystack{cfg: cfg, client: client}
}

func (p *Paystack) Name() string { return PaystackName }

type paystackWebhook struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	BookingID string `json:"bookingId"`
	Currency  string `json:"currency"`
	Signature string `json:"signature"`
}

// Sign returns the signature a callback for these fields must carry.
func Sign(secret, event, reference string, amount int64, bookingID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(event + "|" + reference + "|" + strconv.FormatInt(amount, 10) + "|" + bookingID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (p *Paystack) ParseWebhook(payload []byte, header http.Header) (*models.PaymentEvent, error) {
	var body paystackWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	signature := body.Signature
	if signature == "" && header != nil {
		signature = header.Get("X-Signature")
	}
	if signature == "" || p.cfg.WebhookSecret == "" {
		return nil, ErrInvalidSignature
	}

	expected := Sign(p.cfg.WebhookSecret, body.Event, body.Reference, body.Amount, body.BookingID)
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	eventType := models.PaymentEventType(body.Event)
	if eventType != models.PaymentSucceeded && eventType != models.PaymentFailedEvt {
		return nil, fmt.Errorf("%w: unsupported event %q", ErrMalformed, body.Event)
	}
	if body.Reference == "" || body.BookingID == "" {
		return nil, fmt.Errorf("%w: reference and bookingId are required", ErrMalformed)
	}

	return &models.PaymentEvent{
		Provider:       PaystackName,
		Type:           eventType,
		Reference:      body.Reference,
		BookingID:      body.BookingID,
		Amount:         body.Amount,
		Currency:       strings.ToUpper(body.Currency),
		SignatureValid: true,
		Payload:        payload,
	}, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Metadata  struct {
			BookingID string `json:"booking_id"`
		} `json:"metadata"`
	} `json:"data"`
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*models.PaymentEvent, error) {
	endpoint := p.cfg.BaseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// Includes timeouts on the response leg; the sale may still have
		// gone through.
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("verify %s: unexpected status %d", reference, resp.StatusCode)
	}

	var out paystackVerifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !out.Status {
		return nil, errors.New("verify rejected: " + out.Message)
	}

	event := &models.PaymentEvent{
		Provider:       PaystackName,
		Reference:      reference,
		BookingID:      out.Data.Metadata.BookingID,
		Amount:         out.Data.Amount,
		Currency:       strings.ToUpper(out.Data.Currency),
		SignatureValid: true,
		Payload:        body,
	}
	switch out.Data.Status {
	case "success":
		event.Type = models.PaymentSucceeded
	case "failed", "abandoned", "reversed":
		event.Type = models.PaymentFailedEvt
	default:
		return nil, fmt.Errorf("%w: payment %s is %q", ErrTransient, reference, out.Data.Status)
	}
	return event, nil
}
