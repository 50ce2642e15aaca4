package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medrex/supply/pkg/types"
)

const tracerName = "github.com/medrex/supply/internal/remote"

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 4 << 20

// Client talks to the remote order store over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	adminToken string
	tracer     trace.Tracer
}

// NewClient creates a client for the store at baseURL. Each call is bounded
// by timeout in addition to the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, timeout, &http.Client{})
}

// NewClientWithHTTP lets callers supply their own http.Client
func NewClientWithHTTP(baseURL string, timeout time.Duration, hc *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		timeout:    timeout,
		tracer:     otel.Tracer(tracerName),
	}
}

// WithAdminToken sends token as a bearer credential on every call
func (c *Client) WithAdminToken(token string) *Client {
	c.adminToken = token
	return c
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type createRequest struct {
	Order types.Draft `json:"order"`
}

type orderResponse struct {
	OrderID string        `json:"orderId"`
	Order   *types.Record `json:"order"`
}

type listResponse struct {
	Orders []types.Record `json:"orders"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Health calls GET /health and expects {"ok": true}
func (c *Client) Health(ctx context.Context) error {
	var body healthResponse
	if err := c.do(ctx, "remote.health", http.MethodGet, "/health", nil, &body); err != nil {
		return err
	}
	if !body.OK {
		return types.NewServerError(http.StatusOK, "remote store reported not ok")
	}
	return nil
}

// CreateOrder calls POST /orders and returns the identifier the store
// assigned, plus the stored record when the store echoes it back
func (c *Client) CreateOrder(ctx context.Context, draft types.Draft) (string, *types.Record, error) {
	var body orderResponse
	if err := c.do(ctx, "remote.create", http.MethodPost, "/orders", createRequest{Order: draft}, &body); err != nil {
		return "", nil, err
	}

	id := strings.TrimSpace(body.OrderID)
	if id == "" && body.Order != nil {
		id = strings.TrimSpace(body.Order.ID)
	}
	if id == "" {
		return "", nil, types.NewAmbiguousStatusError(http.StatusOK, "remote store accepted the order without returning an id")
	}
	return id, body.Order, nil
}

// GetOrder calls GET /orders/{id}
func (c *Client) GetOrder(ctx context.Context, id string) (*types.Record, error) {
	var body orderResponse
	if err := c.do(ctx, "remote.get", http.MethodGet, "/orders/"+url.PathEscape(id), nil, &body); err != nil {
		return nil, err
	}
	if body.Order == nil {
		return nil, types.NewAmbiguousStatusError(http.StatusOK, "remote store returned no order")
	}
	return body.Order, nil
}

// ListOrders calls GET /orders. The store may gate this behind a
// location check, which surfaces as an access restricted error.
func (c *Client) ListOrders(ctx context.Context) ([]types.Record, error) {
	var body listResponse
	if err := c.do(ctx, "remote.list", http.MethodGet, "/orders", nil, &body); err != nil {
		return nil, err
	}
	if body.Orders == nil {
		body.Orders = []types.Record{}
	}
	return body.Orders, nil
}

func (c *Client) do(ctx context.Context, spanName, method, path string, in, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		))
	defer span.End()

	err := c.roundTrip(ctx, span, method, path, in, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, span trace.Span, method, path string, in, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return types.NewValidationError(types.ErrCodeInvalidInput, "failed to encode request", map[string]interface{}{"error": err.Error()})
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return types.NewUnreachableError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.NewUnreachableError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return types.NewUnreachableError("failed to read response body", err)
	}

	if err := classifyStatus(resp.StatusCode, data); err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return types.NewAmbiguousStatusError(resp.StatusCode, "remote store returned an unreadable body")
		}
	}
	return nil
}

// classifyStatus maps a non-success status onto the order error kinds
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return types.NewNotFoundError(types.ErrCodeOrderNotFound, "order not found in remote store")
	case status == http.StatusForbidden:
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		msg := "admin access is restricted to approved locations"
		if e.Error != "" && e.Error != "location_restricted" {
			msg = e.Error
		}
		return types.NewAccessRestrictedError(msg)
	case status >= 500:
		return types.NewServerError(status, fmt.Sprintf("remote store returned %d", status))
	default:
		return types.NewAmbiguousStatusError(status, fmt.Sprintf("remote store returned unexpected status %d", status))
	}
}
