package pulse

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/HerbHall/netwatch/pkg/models"
)

// ICMPChecker pings targets using ICMP via pro-bing.
type ICMPChecker struct{}

// NewICMPChecker creates a new ICMP checker.
func NewICMPChecker() *ICMPChecker {
	return &ICMPChecker{}
}

// Check sends cfg.Count echo requests to the target address. TimeoutSeconds
// bounds the wait for each reply, not the whole run.
func (c *ICMPChecker) Check(ctx context.Context, target Target) (*CheckResult, error) {
	cfg, ok := target.Config.(models.ICMPConfig)
	if !ok {
		return nil, fmt.Errorf("%w: icmp checker got %T", models.ErrInvalidConfig, target.Config)
	}

	pinger, err := probing.NewPinger(target.Address)
	if err != nil {
		return downResult(fmt.Sprintf("resolve %s: %v", target.Address, err), nil), nil
	}

	pinger.Count = cfg.Count
	pinger.Size = cfg.PacketSizeBytes
	pinger.Timeout = pingRunTimeout(timeoutOf(cfg.TimeoutSeconds), cfg.Count, pinger.Interval)
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		stats := pinger.Statistics()
		detail := map[string]any{
			"sent":        stats.PacketsSent,
			"received":    stats.PacketsRecv,
			"packet_loss": stats.PacketLoss / 100.0, // pro-bing returns 0-100
		}
		if runErr != nil {
			return downResult(runErr.Error(), detail), nil
		}

		status := pingStatus(stats.PacketsSent, stats.PacketsRecv)
		if status == models.StatusDown {
			return downResult("all packets lost", detail), nil
		}
		return &CheckResult{Status: status, ResponseTimeMs: millis(stats.AvgRtt), Detail: detail}, nil

	case <-ctx.Done():
		pinger.Stop()
		<-done
		return downResult("check cancelled", nil), nil
	}
}

// pingRunTimeout is the deadline for a whole run: the last echo goes out
// after (count-1) send intervals and then gets the full reply timeout.
func pingRunTimeout(reply time.Duration, count int, interval time.Duration) time.Duration {
	if count < 1 {
		count = 1
	}
	return reply + time.Duration(count-1)*interval
}

// pingStatus classifies a finished run. Every echo sent answered is online,
// partial loss is warning, and no reply at all is down.
func pingStatus(sent, received int) models.Status {
	switch {
	case received == 0:
		return models.StatusDown
	case received < sent:
		return models.StatusWarning
	default:
		return models.StatusOnline
	}
}
