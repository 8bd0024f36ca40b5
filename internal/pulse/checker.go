package pulse

import (
	"context"
	"fmt"
	"time"

	"github.com/HerbHall/netwatch/pkg/models"
)

// Target is what a single probe runs against: the owning device's address
// and the monitor's protocol configuration.
type Target struct {
	Address string
	Config  models.MonitorConfig
}

// CheckResult is the normalized outcome of one probe.
type CheckResult struct {
	Status         models.Status
	ResponseTimeMs *int64
	Detail         map[string]any
}

// Checker executes a health check against a target and returns the result.
// Probe failures (timeouts, refused connections, unexpected responses) are
// reported through the result status, not the error. A non-nil error means
// the checker could not run at all.
type Checker interface {
	Check(ctx context.Context, target Target) (*CheckResult, error)
}

// CheckerSet maps each monitor kind to its checker.
type CheckerSet map[models.MonitorKind]Checker

// DefaultCheckers returns the production checkers for all four protocols.
func DefaultCheckers() CheckerSet {
	return CheckerSet{
		models.KindICMP: NewICMPChecker(),
		models.KindHTTP: NewHTTPChecker(),
		models.KindTCP:  NewTCPChecker(),
		models.KindSNMP: NewSNMPChecker(),
	}
}

// Check dispatches to the checker registered for the config's kind.
func (cs CheckerSet) Check(ctx context.Context, target Target) (*CheckResult, error) {
	if target.Config == nil {
		return nil, fmt.Errorf("%w: missing config", models.ErrInvalidConfig)
	}
	c, ok := cs[target.Config.Kind()]
	if !ok {
		return nil, fmt.Errorf("no checker for monitor type %q", target.Config.Kind())
	}
	return c.Check(ctx, target)
}

// downResult builds a down result carrying an error message.
func downResult(msg string, detail map[string]any) *CheckResult {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["error"] = msg
	return &CheckResult{Status: models.StatusDown, Detail: detail}
}

// millis converts a duration to a rounded millisecond pointer.
func millis(d time.Duration) *int64 {
	v := d.Round(time.Millisecond).Milliseconds()
	return &v
}

func timeoutOf(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
