package supervisor

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/duskrange/wanderer/internal/config"
	"github.com/duskrange/wanderer/internal/identity"
	"github.com/duskrange/wanderer/internal/report"
)

type alwaysOKRunner struct{}

func (alwaysOKRunner) Run(_ context.Context, _ identity.Command) (string, string, bool, error) {
	return "", "", true, nil
}

func TestRotateOnceRaisesAndLowersPause(t *testing.T) {
	cfg := &config.Config{
		Sites:               []*url.URL{{}},
		Adapter:             "eth0",
		CIDR:                "10.0.0.0/29",
		DNS:                 "8.8.8.8",
		Gateway:             "10.0.0.1",
		RotationIntervalMin: 1,
	}
	pause := NewPauseSignal()
	controller := &identity.Controller{Runner: alwaysOKRunner{}}
	summary := report.NewSummary("test")
	sup := New(cfg, controller, pause, summary)

	sup.rotateOnce(context.Background())

	if pause.IsPaused() {
		t.Fatal("expected pause signal to be lowered after rotation")
	}
	if summary.RotationsAttempted != 1 {
		t.Fatalf("expected 1 attempted rotation, got %d", summary.RotationsAttempted)
	}
	if summary.RotationsSucceeded != 1 {
		t.Fatalf("expected 1 succeeded rotation, got %d", summary.RotationsSucceeded)
	}
}

func TestRotateOnceFiresHooks(t *testing.T) {
	cfg := &config.Config{
		Adapter:             "eth0",
		CIDR:                "10.0.0.0/29",
		DNS:                 "8.8.8.8",
		Gateway:             "10.0.0.1",
		RotationIntervalMin: 1,
	}
	controller := &identity.Controller{Runner: alwaysOKRunner{}}
	sup := New(cfg, controller, NewPauseSignal(), report.NewSummary("test"))

	var before bool
	var after, afterSuccess bool
	sup.BeforeRotate = func() { before = true }
	sup.AfterRotate = func(success bool) { after = true; afterSuccess = success }

	sup.rotateOnce(context.Background())

	if !before || !after {
		t.Fatal("expected both hooks to fire")
	}
	if !afterSuccess {
		t.Fatal("expected AfterRotate to report success")
	}
}

func TestRandomHostIPExcludesNetworkBroadcastGateway(t *testing.T) {
	cfg := &config.Config{CIDR: "10.0.0.0/29", Gateway: "10.0.0.1"}
	sup := New(cfg, nil, NewPauseSignal(), report.NewSummary("test"))

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		ip, err := sup.randomHostIP()
		if err != nil {
			t.Fatalf("randomHostIP: %v", err)
		}
		s := ip.String()
		if s == "10.0.0.0" || s == "10.0.0.7" || s == "10.0.0.1" {
			t.Fatalf("got excluded address: %s", s)
		}
		seen[s] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected some variety in picked IPs, got %v", seen)
	}
}

func TestSupervisorRunPerformsImmediateRotation(t *testing.T) {
	cfg := &config.Config{
		Adapter:             "eth0",
		CIDR:                "10.0.0.0/29",
		DNS:                 "8.8.8.8",
		Gateway:             "10.0.0.1",
		RotationIntervalMin: 60,
	}
	pause := NewPauseSignal()
	controller := &identity.Controller{Runner: alwaysOKRunner{}}
	summary := report.NewSummary("test")
	sup := New(cfg, controller, pause, summary)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go sup.Run(ctx)
	time.Sleep(1500 * time.Millisecond)
	cancel()

	if summary.RotationsAttempted == 0 {
		t.Fatal("expected at least the immediate rotation to have been attempted")
	}
}
