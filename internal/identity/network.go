package identity

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	xlog "github.com/duskrange/wanderer/internal/log"
)

// Adapter describes one network interface as reported by the host's
// link-listing command.
type Adapter struct {
	Name  string
	MAC   string
	State string // "UP" or "DOWN"
}

// skipPrefixes excludes loopback and virtual/container interfaces that are
// never candidates for identity rotation.
var skipPrefixes = []string{"lo", "docker", "veth", "br-", "virbr"}

func isValidAdapterName(name string) bool {
	if name == "" || len(name) > 15 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

// ParseAdapters parses the textual output of `ip link show` into adapter
// descriptors, excluding loopback and virtual interfaces.
func ParseAdapters(output string) []Adapter {
	var adapters []Adapter
	lines := strings.Split(output, "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		fields := strings.SplitN(line, ":", 3)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSpace(fields[1])
		if at := strings.Index(name, "@"); at >= 0 {
			name = strings.TrimSpace(name[:at])
		}
		if name == "" || !isValidAdapterName(name) {
			continue
		}
		skip := false
		for _, p := range skipPrefixes {
			if strings.HasPrefix(name, p) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		state := "DOWN"
		if strings.Contains(line, "state UP") {
			state = "UP"
		}

		var mac string
		if i+1 < len(lines) {
			next := strings.TrimSpace(lines[i+1])
			if strings.HasPrefix(next, "link/ether") {
				fs := strings.Fields(next)
				if len(fs) >= 2 {
					mac = fs[1]
				}
			}
		}
		if mac == "" {
			continue
		}
		adapters = append(adapters, Adapter{Name: name, MAC: mac, State: state})
	}
	return adapters
}

// OriginalIdentity is the snapshot of an adapter's identity taken before the
// first rotation, used to restore the host's network configuration on
// shutdown.
type OriginalIdentity struct {
	Adapter     string
	IP          string // CIDR form, e.g. "10.0.0.5/24"; empty if unknown
	MAC         string
	Gateway     string // empty if no default route was present
	ResolvConf  string // previous contents of /etc/resolv.conf; empty if unreadable
	hadResolv   bool
}

// Command is one external command to run, kept as plain data so rotation
// sequences can be composed and unit-tested without executing anything.
type Command struct {
	Argv  []string // argv[0] is the program
	Shell string   // if non-empty, run via `sh -c Shell` instead of Argv
}

func (c Command) String() string {
	if c.Shell != "" {
		return "sh -c '" + c.Shell + "'"
	}
	return strings.Join(c.Argv, " ")
}

// Controller drives adapter enumeration, identity rotation, and restoration
// by shelling out to the `ip` toolset. All state mutation is expected to
// happen with the pause signal held by the caller.
type Controller struct {
	Runner CommandRunner
}

// CommandRunner executes a Command and returns combined stdout, stderr, and
// whether the process exited zero. It exists so rotation logic can be
// exercised in tests against a fake.
type CommandRunner interface {
	Run(ctx context.Context, c Command) (stdout, stderr string, exitZero bool, err error)
}

// ExecRunner is the production CommandRunner backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) (string, string, bool, error) {
	var cmd *exec.Cmd
	if c.Shell != "" {
		cmd = exec.CommandContext(ctx, "sh", "-c", c.Shell)
	} else {
		if len(c.Argv) == 0 {
			return "", "", false, fmt.Errorf("empty command")
		}
		cmd = exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitZero := err == nil
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return stdout.String(), stderr.String(), false, err
		}
	}
	return stdout.String(), stderr.String(), exitZero, nil
}

func NewController() *Controller {
	return &Controller{Runner: ExecRunner{}}
}

// EnumerateAdapters runs the host's link-listing command and parses its
// output into adapter descriptors.
func (c *Controller) EnumerateAdapters(ctx context.Context) ([]Adapter, error) {
	stdout, stderr, ok, err := c.Runner.Run(ctx, Command{Argv: []string{"ip", "link", "show"}})
	if err != nil {
		return nil, fmt.Errorf("identity: run 'ip link show': %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("identity: 'ip link show' failed: %s", stderr)
	}
	return ParseAdapters(stdout), nil
}

// SnapshotIdentity captures the adapter's current IP, MAC, default gateway,
// and the host's current /etc/resolv.conf contents, so they can be restored
// on shutdown.
func (c *Controller) SnapshotIdentity(ctx context.Context, adapter string) (OriginalIdentity, error) {
	snap := OriginalIdentity{Adapter: adapter}

	stdout, _, _, err := c.Runner.Run(ctx, Command{Argv: []string{"ip", "addr", "show", "dev", adapter}})
	if err != nil {
		return snap, fmt.Errorf("identity: query adapter %s: %w", adapter, err)
	}
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "inet ") && !strings.Contains(trimmed, "inet6") {
			fs := strings.Fields(trimmed)
			if len(fs) >= 2 {
				snap.IP = fs[1]
			}
		}
		if strings.Contains(trimmed, "link/ether") {
			fs := strings.Fields(trimmed)
			if len(fs) >= 2 {
				snap.MAC = fs[1]
			}
		}
	}

	routeOut, _, _, err := c.Runner.Run(ctx, Command{Argv: []string{"ip", "route", "show", "default"}})
	if err != nil {
		return snap, fmt.Errorf("identity: query default route: %w", err)
	}
	if line, _, _ := strings.Cut(routeOut, "\n"); line != "" {
		fs := strings.Fields(line)
		for i, f := range fs {
			if f == "via" && i+1 < len(fs) {
				snap.Gateway = fs[i+1]
				break
			}
		}
	}

	if b, err := os.ReadFile("/etc/resolv.conf"); err == nil {
		snap.ResolvConf = string(b)
		snap.hadResolv = true
	}

	return snap, nil
}

// ComposeRotation produces the exactly-seven-command sequence that performs
// one atomic identity rotation. Returned as data, not executed, so callers
// and tests can inspect the sequence before (or instead of) running it.
func ComposeRotation(adapter, newMAC, newIP string, prefixLen int, gateway, dns string) []Command {
	return []Command{
		{Argv: []string{"ip", "link", "set", "dev", adapter, "down"}},
		{Argv: []string{"ip", "link", "set", "dev", adapter, "address", newMAC}},
		{Argv: []string{"ip", "link", "set", "dev", adapter, "up"}},
		{Argv: []string{"ip", "addr", "flush", "dev", adapter}},
		{Argv: []string{"ip", "addr", "add", fmt.Sprintf("%s/%d", newIP, prefixLen), "dev", adapter}},
		{Argv: []string{"ip", "route", "add", "default", "via", gateway, "dev", adapter}},
		{Shell: fmt.Sprintf("echo 'nameserver %s' > /etc/resolv.conf", dns)},
	}
}

// benignErr matches host-command failures that are safe to ignore because
// they indicate the target state is already in place. Every benign error
// still counts against maxBenignErrors in ExecuteRotation — repeated
// "already there" failures across a single rotation are a sign the adapter
// is in an unexpected state, not something to tolerate indefinitely.
func benignErr(stderr string) bool {
	return strings.Contains(stderr, "No such process") || strings.Contains(stderr, "File exists")
}

// gatewayOutsideSubnet matches the route command's failure message when the
// configured gateway does not fall inside the newly-assigned subnet, the
// one case ExecuteRotation retries with an "onlink" route flag.
func gatewayOutsideSubnet(stderr string) bool {
	return strings.Contains(stderr, "invalid gateway") || strings.Contains(stderr, "outside subnet") ||
		strings.Contains(stderr, "Nexthop has invalid gateway")
}

// ExecuteRotation runs the composed command sequence. A route command that
// fails specifically because the gateway falls outside the newly-assigned
// subnet is retried once with an "onlink" flag appended; any other route
// failure is surfaced rather than masked. maxBenignErrors caps how many
// "already in place" failures (see benignErr) this attempt will absorb
// before it gives up and reports the rotation as failed, so a host stuck
// issuing the same benign failure over and over does not look like a
// succeeding rotation forever. After the last command it waits for the
// link to settle.
func (c *Controller) ExecuteRotation(ctx context.Context, adapter, newMAC, newIP string, prefixLen int, gateway, dns string, maxBenignErrors int) error {
	commands := ComposeRotation(adapter, newMAC, newIP, prefixLen, gateway, dns)
	benignCount := 0
	for _, cmd := range commands {
		_, stderr, ok, err := c.Runner.Run(ctx, cmd)
		if err != nil {
			return fmt.Errorf("identity: execute %q: %w", cmd, err)
		}
		if ok {
			continue
		}
		if benignErr(stderr) {
			benignCount++
			if benignCount > maxBenignErrors {
				return fmt.Errorf("identity: %q failed: %d benign errors in this rotation attempt, exceeding tolerance: %s", cmd, benignCount, stderr)
			}
			xlog.LogWarn("identity.rotate", fmt.Sprintf("absorbed benign error (%d/%d tolerated): %s", benignCount, maxBenignErrors, stderr))
			continue
		}
		if isRouteCommand(cmd) && gatewayOutsideSubnet(stderr) {
			xlog.LogWarn("identity.rotate", "gateway outside assigned subnet, retrying with onlink: "+stderr)
			retry := Command{Argv: append(append([]string{}, cmd.Argv...), "onlink")}
			_, stderr2, ok2, err2 := c.Runner.Run(ctx, retry)
			if err2 != nil {
				return fmt.Errorf("identity: execute %q: %w", retry, err2)
			}
			if ok2 {
				continue
			}
			if benignErr(stderr2) {
				benignCount++
				if benignCount > maxBenignErrors {
					return fmt.Errorf("identity: %q failed: %d benign errors in this rotation attempt, exceeding tolerance: %s", retry, benignCount, stderr2)
				}
				xlog.LogWarn("identity.rotate", fmt.Sprintf("absorbed benign error (%d/%d tolerated): %s", benignCount, maxBenignErrors, stderr2))
				continue
			}
			return fmt.Errorf("identity: %q failed: %s", retry, stderr2)
		}
		return fmt.Errorf("identity: %q failed: %s", cmd, stderr)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func isRouteCommand(c Command) bool {
	for _, a := range c.Argv {
		if a == "route" {
			return true
		}
	}
	return false
}

// Restore reverses a rotation on a best-effort basis: every step runs even
// if an earlier one failed, since the process is exiting regardless.
func (c *Controller) Restore(ctx context.Context, snap OriginalIdentity) {
	if snap.MAC != "" {
		_, _, _, _ = c.Runner.Run(ctx, Command{Argv: []string{"ip", "link", "set", "dev", snap.Adapter, "down"}})
		_, _, _, _ = c.Runner.Run(ctx, Command{Argv: []string{"ip", "link", "set", "dev", snap.Adapter, "address", snap.MAC}})
		_, _, _, _ = c.Runner.Run(ctx, Command{Argv: []string{"ip", "link", "set", "dev", snap.Adapter, "up"}})
	}
	if snap.IP != "" {
		_, _, _, _ = c.Runner.Run(ctx, Command{Argv: []string{"ip", "addr", "flush", "dev", snap.Adapter}})
		_, _, _, _ = c.Runner.Run(ctx, Command{Argv: []string{"ip", "addr", "add", snap.IP, "dev", snap.Adapter}})
	}
	if snap.Gateway != "" {
		_, _, _, _ = c.Runner.Run(ctx, Command{Argv: []string{"ip", "route", "add", "default", "via", snap.Gateway, "dev", snap.Adapter}})
	}
	if snap.hadResolv {
		if err := os.WriteFile("/etc/resolv.conf", []byte(snap.ResolvConf), 0o644); err != nil {
			xlog.LogWarn("identity.restore", "failed to restore resolv.conf: "+err.Error())
		}
	}
}
