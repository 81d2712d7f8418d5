package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/duskrange/wanderer/internal/config"
	"github.com/duskrange/wanderer/internal/identity"
	xlog "github.com/duskrange/wanderer/internal/log"
	"github.com/duskrange/wanderer/internal/report"
)

// pauseDrain is how long the supervisor waits after raising the pause
// signal before touching the network adapter, giving in-flight users time
// to reach a quiescent point.
const pauseDrain = 1 * time.Second

// Supervisor periodically rotates the host's network identity while
// holding every virtual user at a pause point.
type Supervisor struct {
	Config     *config.Config
	Controller *identity.Controller
	Pause      *PauseSignal
	Summary    *report.Summary

	// BeforeRotate and AfterRotate, if set, bracket each rotation attempt.
	// They let a caller drive operator-facing feedback (a spinner, a log
	// line) without this package depending on anything console-shaped.
	BeforeRotate func()
	AfterRotate  func(success bool)
}

func New(cfg *config.Config, controller *identity.Controller, pause *PauseSignal, summary *report.Summary) *Supervisor {
	return &Supervisor{Config: cfg, Controller: controller, Pause: pause, Summary: summary}
}

// Run performs an immediate rotation, then rotates again every
// RotationIntervalMin until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	s.rotateOnce(ctx)

	ticker := time.NewTicker(time.Duration(s.Config.RotationIntervalMin) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rotateOnce(ctx)
		}
	}
}

func (s *Supervisor) rotateOnce(ctx context.Context) {
	mac, err := identity.GenerateMAC()
	if err != nil {
		xlog.LogError("supervisor.rotate", "failed to generate mac: "+err.Error())
		return
	}

	newIP, err := s.randomHostIP()
	if err != nil {
		xlog.LogWarn("supervisor.rotate", "candidate exhaustion: "+err.Error())
		return
	}

	_, network, err := net.ParseCIDR(s.Config.CIDR)
	if err != nil {
		xlog.LogError("supervisor.rotate", "invalid cidr: "+err.Error())
		return
	}
	prefixLen, _ := network.Mask.Size()

	s.Pause.Raise()
	select {
	case <-time.After(pauseDrain):
	case <-ctx.Done():
		s.Pause.Lower()
		return
	}

	if s.BeforeRotate != nil {
		s.BeforeRotate()
	}

	s.Summary.IncRotationAttempted()
	err = s.Controller.ExecuteRotation(ctx, s.Config.Adapter, mac.Address, newIP.String(), prefixLen, s.Config.Gateway, s.Config.DNS, s.Config.Runtime.MaxBenignErrorTolerance)
	success := err == nil
	if err != nil {
		xlog.LogError("supervisor.rotate", fmt.Sprintf("rotation failed: %v", err))
	} else {
		s.Summary.IncRotationSucceeded()
		xlog.LogInfo("supervisor.rotate", fmt.Sprintf("new identity: ip=%s mac=%s (%s)", newIP, mac.Address, mac.Vendor))
	}

	if s.AfterRotate != nil {
		s.AfterRotate(success)
	}

	s.Pause.Lower()
}

// randomHostIP picks a uniformly random address from the CIDR's host set,
// excluding the network address, broadcast address, and configured
// gateway. IP reuse across rotations is permitted.
func (s *Supervisor) randomHostIP() (net.IP, error) {
	_, ipnet, err := net.ParseCIDR(s.Config.CIDR)
	if err != nil {
		return nil, fmt.Errorf("invalid cidr %q: %w", s.Config.CIDR, err)
	}
	gateway := net.ParseIP(s.Config.Gateway)

	var hosts []net.IP
	for ip := firstIP(ipnet); ipnet.Contains(ip); ip = nextIP(ip) {
		if ip.Equal(networkAddr(ipnet)) || ip.Equal(broadcastAddr(ipnet)) {
			continue
		}
		if gateway != nil && ip.Equal(gateway) {
			continue
		}
		hosts = append(hosts, cloneIP(ip))
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no valid hosts in CIDR range %s", s.Config.CIDR)
	}
	return hosts[rand.Intn(len(hosts))], nil
}

func firstIP(n *net.IPNet) net.IP {
	return cloneIP(n.IP)
}

func networkAddr(n *net.IPNet) net.IP {
	return n.IP.Mask(n.Mask)
}

func broadcastAddr(n *net.IPNet) net.IP {
	ip := cloneIP(n.IP).To4()
	if ip == nil {
		return n.IP
	}
	mask := n.Mask
	out := make(net.IP, len(ip))
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}

func nextIP(ip net.IP) net.IP {
	out := cloneIP(ip)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}
