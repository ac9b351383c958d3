package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	MetricGatewayRequests    = "khalti_requests"
	MetricGatewayFailures    = "khalti_failures"
	MetricGatewayRejected    = "khalti_rejected"
	MetricGatewayBreakerOpen = "khalti_breaker_open"
)

type KhaltiConfig struct {
	SecretKey  string
	BaseURL    string
	ReturnURL  string
	WebsiteURL string
	Timeout    time.Duration
}

type khaltiGateway struct {
	cfg        KhaltiConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*khaltiResponse]
	metrics    *metrics.Registry
}

// khaltiResponse is a completed HTTP exchange. 4xx responses are returned
// as values so client mistakes do not trip the breaker.
type khaltiResponse struct {
	status int
	body   []byte
}

// upstreamFailure is a 5xx from Khalti. It is returned as an error so the
// breaker counts it, and keeps the upstream message for the caller.
type upstreamFailure struct {
	status  int
	message string
}

func (e *upstreamFailure) Error() string {
	return fmt.Sprintf("khalti returned %d: %s", e.status, e.message)
}

func NewKhaltiGateway(cfg KhaltiConfig, reg *metrics.Registry) Gateway {
	if cfg.SecretKey == "" {
		logger.L().Warn("Khalti secret key is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &khaltiGateway{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[*khaltiResponse](gobreaker.Settings{
			Name:        "khalti",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.L().Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		metrics: reg,
	}
}

func (k *khaltiGateway) Name() string { return GatewayKhalti }

func (k *khaltiGateway) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Khalti.Initiate"),
		zap.String("order_id", req.OrderID),
		zap.Int64("amount", req.AmountPaisa),
	)

	body := map[string]any{
		"return_url":          k.cfg.ReturnURL,
		"website_url":         k.cfg.WebsiteURL,
		"amount":              req.AmountPaisa,
		"purchase_order_id":   req.OrderID,
		"purchase_order_name": req.OrderName,
	}

	resp, err := k.post(ctx, "/epayment/initiate/", body)
	if err != nil {
		log.Error("Khalti initiate failed", zap.Error(err))
		return nil, err
	}

	var res InitiateResult
	if err := json.Unmarshal(resp.body, &res); err != nil {
		log.Error("Failed decoding Khalti initiate response", zap.Error(err))
		return nil, GatewayError("Invalid response from payment gateway")
	}
	if res.Pidx == "" || res.PaymentURL == "" {
		log.Error("Khalti initiate response missing pidx", zap.ByteString("response", resp.body))
		return nil, GatewayError("Invalid response from payment gateway")
	}
	res.Raw = json.RawMessage(resp.body)

	log.Info("Khalti payment initiated", zap.String("pidx", res.Pidx))
	return &res, nil
}

func (k *khaltiGateway) Lookup(ctx context.Context, pidx string) (*LookupResult, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "Khalti.Lookup"),
		zap.String("pidx", pidx),
	)

	resp, err := k.post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx})
	if err != nil {
		log.Error("Khalti lookup failed", zap.Error(err))
		return nil, err
	}

	var res LookupResult
	if err := json.Unmarshal(resp.body, &res); err != nil {
		log.Error("Failed decoding Khalti lookup response", zap.Error(err))
		return nil, GatewayError("Invalid response from payment gateway")
	}
	res.Raw = json.RawMessage(resp.body)

	log.Info("Khalti lookup completed", zap.String("status", res.Status))
	return &res, nil
}

// post sends body through the breaker and turns every non-2xx outcome into
// a GatewayError.
func (k *khaltiGateway) post(ctx context.Context, path string, body any) (*khaltiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal khalti request: %w", err)
	}

	k.metrics.Counter(MetricGatewayRequests).Inc()

	resp, err := k.breaker.Execute(func() (*khaltiResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Key "+k.cfg.SecretKey)
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := k.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("read khalti response: %w", err)
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, &upstreamFailure{status: httpResp.StatusCode, message: upstreamMessage(data)}
		}
		return &khaltiResponse{status: httpResp.StatusCode, body: data}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			k.metrics.Counter(MetricGatewayBreakerOpen).Inc()
			return nil, ErrGatewayUnavailable
		}
		k.metrics.Counter(MetricGatewayFailures).Inc()
		var upstream *upstreamFailure
		if errors.As(err, &upstream) && upstream.message != "" {
			return nil, GatewayError(upstream.message)
		}
		return nil, GatewayError("Payment gateway request failed")
	}

	if resp.status < 200 || resp.status >= 300 {
		k.metrics.Counter(MetricGatewayRejected).Inc()
		return nil, GatewayError(upstreamMessage(resp.body))
	}
	return resp, nil
}

// upstreamMessage extracts a readable message from a Khalti error body.
// Khalti reports either {"detail": "..."} or per-field message lists.
func upstreamMessage(body []byte) string {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return ""
	}

	var detail string
	if raw, ok := generic["detail"]; ok && json.Unmarshal(raw, &detail) == nil && detail != "" {
		return detail
	}

	keys := make([]string, 0, len(generic))
	for key := range generic {
		if key != "error_key" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		var msgs []string
		if json.Unmarshal(generic[key], &msgs) == nil && len(msgs) > 0 {
			return msgs[0]
		}
		var msg string
		if json.Unmarshal(generic[key], &msg) == nil && msg != "" {
			return msg
		}
	}
	return ""
}
