package pulse

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HerbHall/netwatch/internal/version"
	"github.com/HerbHall/netwatch/pkg/models"
)

// maxDrainBytes bounds how much of a response body is read and discarded.
const maxDrainBytes = 64 << 10

// HTTPChecker performs an HTTP(S) request and compares the status code.
type HTTPChecker struct {
	verifying *http.Client
	insecure  *http.Client
}

// NewHTTPChecker creates an HTTP checker. Per-request timeouts come from the
// monitor config.
func NewHTTPChecker() *HTTPChecker {
	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per monitor via validate_tls=false
	return &HTTPChecker{
		verifying: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		insecure:  &http.Client{Transport: insecure},
	}
}

// Check issues the configured request. A response with the expected status is
// online, any other status is warning, and no response is down.
func (c *HTTPChecker) Check(ctx context.Context, target Target) (*CheckResult, error) {
	cfg, ok := target.Config.(models.HTTPConfig)
	if !ok {
		return nil, fmt.Errorf("%w: http checker got %T", models.ErrInvalidConfig, target.Config)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOf(cfg.TimeoutSeconds))
	defer cancel()

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, body)
	if err != nil {
		return downResult(fmt.Sprintf("build request: %v", err), nil), nil
	}
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	client := c.verifying
	if !cfg.TLSVerify() {
		client = c.insecure
	}

	detail := map[string]any{"expected_status_code": cfg.ExpectedStatusCode}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return downResult(err.Error(), detail), nil
	}
	elapsed := time.Since(start)
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	resp.Body.Close()

	detail["status_code"] = resp.StatusCode
	if resp.StatusCode != cfg.ExpectedStatusCode {
		detail["error"] = fmt.Sprintf("unexpected status %d, want %d", resp.StatusCode, cfg.ExpectedStatusCode)
		return &CheckResult{Status: models.StatusWarning, ResponseTimeMs: millis(elapsed), Detail: detail}, nil
	}
	return &CheckResult{Status: models.StatusOnline, ResponseTimeMs: millis(elapsed), Detail: detail}, nil
}
