package pulse

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/HerbHall/netwatch/pkg/models"
)

// TCPChecker tests whether a TCP port accepts connections.
type TCPChecker struct {
	dialer net.Dialer
}

// NewTCPChecker creates a TCP checker.
func NewTCPChecker() *TCPChecker {
	return &TCPChecker{}
}

// Check connects to address:port. The response time is the connect latency
// and is nil when the connection fails.
func (c *TCPChecker) Check(ctx context.Context, target Target) (*CheckResult, error) {
	cfg, ok := target.Config.(models.TCPConfig)
	if !ok {
		return nil, fmt.Errorf("%w: tcp checker got %T", models.ErrInvalidConfig, target.Config)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOf(cfg.TimeoutSeconds))
	defer cancel()

	detail := map[string]any{"port": cfg.Port}
	addr := net.JoinHostPort(target.Address, strconv.Itoa(cfg.Port))
	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return downResult(err.Error(), detail), nil
	}
	elapsed := time.Since(start)
	conn.Close()

	return &CheckResult{Status: models.StatusOnline, ResponseTimeMs: millis(elapsed), Detail: detail}, nil
}
