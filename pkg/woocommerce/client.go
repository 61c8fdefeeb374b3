package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/stockpulse-backend/pkg/errors"
	"github.com/angelmondragon/stockpulse-backend/pkg/logger"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "stockpulse-backend"
	maxErrorBody     = 4 << 10
	redactedValue    = "[REDACTED]"

	productsPath = "/products"
	ordersPath   = "/orders"
)

// FailurePolicy decides what the Get* helpers do with transport failures.
type FailurePolicy int

const (
	// FailEmpty logs the transport failure and degrades to an empty result.
	FailEmpty FailurePolicy = iota
	// FailLoud returns the transport failure to the caller.
	FailLoud
)

// ParseFailurePolicy maps the config values "empty" and "loud".
func ParseFailurePolicy(raw string) FailurePolicy {
	if strings.EqualFold(strings.TrimSpace(raw), "loud") {
		return FailLoud
	}
	return FailEmpty
}

func (p FailurePolicy) String() string {
	if p == FailLoud {
		return "loud"
	}
	return "empty"
}

// RequestObserver records per-request timing. Implemented by metrics.ClientMetrics.
type RequestObserver interface {
	ObserveRequest(operation string, status int, duration time.Duration)
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithFailurePolicy(policy FailurePolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

func WithObserver(observer RequestObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if ua := strings.TrimSpace(userAgent); ua != "" {
			c.userAgent = ua
		}
	}
}

// Client talks to a WooCommerce store's REST API with Basic-auth credentials.
type Client struct {
	cfg        Config
	httpClient *http.Client
	userAgent  string
	policy     FailurePolicy
	observer   RequestObserver
	logger     *logger.Logger
}

// NewClient merges overrides onto DefaultConfig. It performs no I/O and never
// fails; configuration problems surface as CONFIGURATION_ERROR on first use.
func NewClient(overrides Config, logg *logger.Logger, opts ...Option) *Client {
	if logg == nil {
		logg = logger.Nop()
	}
	c := &Client{
		cfg:        MergeConfig(overrides),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		policy:     FailEmpty,
		logger:     logg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the merged configuration with credentials redacted.
func (c *Client) Config() Config {
	return c.cfg.Redacted()
}

func (c *Client) Policy() FailurePolicy {
	return c.policy
}

// FetchProducts lists products and reports every failure.
func (c *Client) FetchProducts(ctx context.Context, params ProductParams) ([]RawProduct, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	var products []RawProduct
	if err := c.get(ctx, "list_products", productsPath, params.values(), &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []RawProduct{}
	}
	return products, nil
}

// FetchOrders lists orders and reports every failure.
func (c *Client) FetchOrders(ctx context.Context, params OrderParams) ([]RawOrder, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	var orders []RawOrder
	if err := c.get(ctx, "list_orders", ordersPath, params.values(), &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []RawOrder{}
	}
	return orders, nil
}

// GetProducts lists products under the client's failure policy. With FailEmpty
// a transport failure is logged and an empty slice is returned.
func (c *Client) GetProducts(ctx context.Context, params ProductParams) ([]RawProduct, error) {
	products, err := c.FetchProducts(ctx, params)
	if err != nil {
		if herr := c.HandleFailure(ctx, "list_products", err); herr != nil {
			return nil, herr
		}
		return []RawProduct{}, nil
	}
	return products, nil
}

// HandleFailure applies the failure policy to err. It returns nil when the
// caller should degrade to an empty result.
func (c *Client) HandleFailure(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if c.policy == FailEmpty && pkgerrors.IsTransport(err) {
		c.log(ctx, "degraded", op, map[string]any{"error": err.Error(), "policy": c.policy.String()})
		return nil
	}
	return err
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, dest any) error {
	if err := c.cfg.validate(); err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return err
	}

	endpoint := c.cfg.RootURL() + path
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeConfiguration, err, "build woocommerce request")
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.log(ctx, "request", op, map[string]any{"path": path, "query": query.Encode()})

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, 0, time.Since(start))
		wrapped := transportError(op, 0, err)
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return wrapped
	}
	defer resp.Body.Close()
	c.observe(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		c.log(ctx, "error", op, map[string]any{"error": apiErr.Error(), "status": resp.StatusCode})
		return transportError(op, resp.StatusCode, apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error(), "status": resp.StatusCode})
		return transportError(op, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}

	c.log(ctx, "response", op, map[string]any{"status": resp.StatusCode})
	return nil
}

func transportError(op string, status int, err error) error {
	details := map[string]any{"operation": op}
	if status > 0 {
		details["status"] = status
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		details["remote_code"] = apiErr.Code
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransport, err, fmt.Sprintf("woocommerce %s failed", op)).WithDetails(details)
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}
	if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		apiErr.Message = msg
	}
	return apiErr
}

func validateParams(params any) error {
	if err := validate.Struct(params); err != nil {
		fields := map[string]string{}
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			for _, fe := range errs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid query parameters").WithDetails(fields)
	}
	return nil
}

func (c *Client) observe(op string, status int, duration time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRequest(op, status, duration)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"phase": phase,
		"store": c.cfg.BaseURL,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(c.logger.WithOperation(ctx, op), logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("woocommerce %s", op), errors.New(c.scrub(fmt.Sprint(fields["error"]))))
	case "degraded":
		c.logger.Warn(ctx, fmt.Sprintf("woocommerce %s degraded to empty result", op))
	default:
		c.logger.Debug(ctx, fmt.Sprintf("woocommerce %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"consumer", "secret", "password", "token", "authorization"} {
		if strings.Contains(lower, sensitive) {
			return redactedValue
		}
	}
	if s, ok := value.(string); ok {
		return c.scrub(s)
	}
	return value
}

// scrub removes credential values that may have leaked into free-form text.
func (c *Client) scrub(s string) string {
	for _, secret := range []string{c.cfg.ConsumerKey, c.cfg.ConsumerSecret} {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redactedValue)
		}
	}
	return s
}
