package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duskrange/wanderer/internal/identity"
	xlog "github.com/duskrange/wanderer/internal/log"
	"github.com/duskrange/wanderer/internal/report"
)

const shutdownTimeout = 15 * time.Second

// Coordinator waits for SIGINT/SIGTERM, cancels every task via the
// context it hands out, and restores the host's original network identity
// on the way out. Restoration and summary flushing are both best-effort:
// cleanup must complete even if a step fails.
type Coordinator struct {
	Controller *identity.Controller
	Snapshot   identity.OriginalIdentity
	Summary    *report.Summary
	ReportPath string
}

// Context returns a context cancelled on SIGINT/SIGTERM together with a
// stop function the caller should defer.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Run blocks until ctx is done, then restores the original network
// identity and flushes the run summary. ctx is typically the one returned by
// Context, so Run returns after SIGINT/SIGTERM or an explicit cancel.
func (c *Coordinator) Run(ctx context.Context) {
	<-ctx.Done()
	xlog.LogInfo("shutdown", "shutting down, restoring original network configuration")

	restoreCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.Controller.Restore(restoreCtx, c.Snapshot)

	if c.Summary != nil && c.ReportPath != "" {
		if err := c.Summary.Save(c.ReportPath); err != nil {
			xlog.LogWarn("shutdown", "failed to write run summary: "+err.Error())
		}
	}

	xlog.LogInfo("shutdown", "original network configuration restored")
}
