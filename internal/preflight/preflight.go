// Package preflight probes target reachability before a crawl commits
// to a full run.
package preflight

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

const securePort = "443"

// Dialer performs a bounded-time raw connection attempt against the
// target host's secure port. Establishing the connection is the whole
// check; no application-level exchange happens.
type Dialer struct {
	logger *zap.Logger
}

// NewDialer returns a Dialer.
func NewDialer(logger *zap.Logger) *Dialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dialer{logger: logger}
}

// Check opens a TCP connection to host:443 within timeout and closes
// it immediately on success. Exactly one outcome is produced: the
// dial's context plumbing cancels the pending attempt on timeout, and
// a successful connect cancels the timer, so a late failure cannot
// follow a successful connect.
func (d *Dialer) Check(ctx context.Context, host string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, securePort)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if cerr := conn.Close(); cerr != nil {
		d.logger.Debug("preflight connection close failed", zap.Error(cerr))
	}
	d.logger.Debug("preflight ok",
		zap.String("addr", addr),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
