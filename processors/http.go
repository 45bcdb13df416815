package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	// HeaderStatusCode is set on the message to the response status code
	HeaderStatusCode = "HTTPStatusCode"
	// HeaderContentType is set on the message to the response content type
	HeaderContentType = "Content-Type"
)

// HTTPForwarderConfig holds configuration for HTTPForwarder
type HTTPForwarderConfig struct {
	URL    string
	Client *http.Client // Defaults to a client with a 30s timeout
	Logger telemetry.Logger
}

// HTTPForwarder POSTs the message body to a URL and replaces the body with
// the response body. Non-2xx responses fail the branch.
type HTTPForwarder struct {
	config HTTPForwarderConfig
}

// NewHTTPForwarder creates a new HTTPForwarder
func NewHTTPForwarder(config HTTPForwarderConfig) *HTTPForwarder {
	if config.Client == nil {
		config.Client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	config.Logger = withDefaultLogger(config.Logger)
	return &HTTPForwarder{
		config: config,
	}
}

// Name returns the processor name
func (f *HTTPForwarder) Name() string {
	return "http:" + f.config.URL
}

// Process implements core.Processor
func (f *HTTPForwarder) Process(ctx context.Context, msg *core.Message) error {
	logger := f.config.Logger.WithModule("http_forwarder")

	payload, contentType, err := encodeBody(msg.Body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Message-Id", msg.ID)

	resp, err := f.config.Client.Do(req)
	if err != nil {
		logger.Warn("HTTP forward failed", telemetry.Err(err), telemetry.String("url", f.config.URL))
		return fmt.Errorf("post %s: %w", f.config.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	msg.SetHeader(HeaderStatusCode, resp.StatusCode)
	msg.SetHeader(HeaderContentType, resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %d", f.config.URL, resp.StatusCode)
	}

	msg.Body = string(body)

	logger.Debug("HTTP forward complete",
		telemetry.String("url", f.config.URL),
		telemetry.Int("status", resp.StatusCode),
		telemetry.Int("size", len(body)))
	return nil
}

// encodeBody turns a message body into a request payload
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "text/plain; charset=utf-8", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	case []byte:
		return b, "application/octet-stream", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode body: %w", err)
		}
		return data, "application/json", nil
	}
}
