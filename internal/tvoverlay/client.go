package tvoverlay

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

// DefaultPort is the port the TvOverlay app listens on out of the box.
const DefaultPort = 5001

// DefaultTimeout bounds every request to the device.
const DefaultTimeout = 10 * time.Second

// Endpoint identifies one of the fixed HTTP endpoints the app exposes.
type Endpoint int

const (
	EndpointNotify Endpoint = iota
	EndpointNotifyFixed
	EndpointOverlay
	EndpointNotifications
	EndpointSettings
)

// Path returns the URL path the endpoint is served at.
func (e Endpoint) Path() string {
	switch e {
	case EndpointNotify:
		return "/notify"
	case EndpointNotifyFixed:
		return "/notify_fixed"
	case EndpointOverlay:
		return "/set_overlay"
	case EndpointNotifications:
		return "/set_notifications"
	case EndpointSettings:
		return "/set_settings"
	}
	return ""
}

// ConnectionError indicates the device could not be reached at all: a
// timeout, a refused connection, or any other transport failure. Non-200
// responses are not connection errors.
type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to TvOverlay at %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Client talks to a single TvOverlay instance over its local HTTP API.
type Client struct {
	host   string
	port   int
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a client for the app at host:port. A shared *http.Client
// may be supplied to pool connections across devices; when nil the client
// owns one with DefaultTimeout.
func NewClient(host string, port int, httpClient *http.Client, logger *zap.Logger) *Client {
	if port == 0 {
		port = DefaultPort
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		host:   host,
		port:   port,
		http:   httpClient,
		logger: logger,
	}
}

// Host returns the device host.
func (c *Client) Host() string {
	return c.host
}

// Port returns the device port.
func (c *Client) Port() int {
	return c.port
}

// Addr returns the device address as host:port.
func (c *Client) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// post sends a JSON body to one of the app endpoints. It returns true iff
// the response status is exactly 200; any other status is logged and
// reported as false without an error. Transport failures and timeouts come
// back as *ConnectionError, the only error this client produces.
func (c *Client) post(ctx context.Context, endpoint Endpoint, payload map[string]interface{}) (bool, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encoding payload: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d%s", c.host, c.port, endpoint.Path())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, &ConnectionError{Host: c.host, Port: c.port, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Error("TvOverlay API error",
			zap.String("endpoint", endpoint.Path()),
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(respBody))))
		return false, nil
	}

	return true, nil
}

// Notify sends a transient overlay notification.
func (c *Client) Notify(ctx context.Context, req NotificationRequest) (bool, error) {
	return c.post(ctx, EndpointNotify, req.Payload())
}

// NotifyFixed creates or updates a persistent fixed notification.
func (c *Client) NotifyFixed(ctx context.Context, req FixedNotificationRequest) (bool, error) {
	return c.post(ctx, EndpointNotifyFixed, req.Payload())
}

// ClearFixed dismisses the fixed notification with the given ID by
// re-sending it invisible.
func (c *Client) ClearFixed(ctx context.Context, id string) (bool, error) {
	visible := false
	return c.NotifyFixed(ctx, FixedNotificationRequest{ID: id, Visible: &visible})
}

// SetOverlay updates the clock and overlay visibility settings.
func (c *Client) SetOverlay(ctx context.Context, settings OverlaySettings) (bool, error) {
	return c.post(ctx, EndpointOverlay, settings.Payload())
}

// SetNotifications updates notification display settings.
func (c *Client) SetNotifications(ctx context.Context, settings NotificationSettings) (bool, error) {
	return c.post(ctx, EndpointNotifications, settings.Payload())
}

// SetSettings updates app-level settings.
func (c *Client) SetSettings(ctx context.Context, settings SystemSettings) (bool, error) {
	return c.post(ctx, EndpointSettings, settings.Payload())
}

// TestConnection checks whether the device answers on the notify endpoint.
// Any failure, including transport errors, is reported as false; it never
// returns an error.
func (c *Client) TestConnection(ctx context.Context) bool {
	ok, err := c.post(ctx, EndpointNotify, nil)
	if err != nil {
		c.logger.Debug("Connection test failed", zap.String("device", c.Addr()), zap.Error(err))
		return false
	}
	return ok
}
