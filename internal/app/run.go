package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/duskrange/wanderer/internal/config"
	"github.com/duskrange/wanderer/internal/console"
	"github.com/duskrange/wanderer/internal/identity"
	xlog "github.com/duskrange/wanderer/internal/log"
	"github.com/duskrange/wanderer/internal/report"
	"github.com/duskrange/wanderer/internal/shutdown"
	"github.com/duskrange/wanderer/internal/supervisor"
	"github.com/duskrange/wanderer/internal/utils"
	"github.com/duskrange/wanderer/internal/walker"
)

// RunOptions carries the flags the run subcommand accepts.
type RunOptions struct {
	Quiet      bool
	Debug      bool
	ConfigPath string
	SitesPath  string
}

// Run executes the full startup-to-shutdown lifecycle: privilege check,
// site and adapter discovery, configuration (preset or interactive),
// confirmation, identity snapshot, and the spawn of every long-lived task.
// It returns a process exit code; it never calls os.Exit itself.
func Run(opts RunOptions) int {
	if syscall.Geteuid() != 0 {
		utils.PrintError("wanderer must run as root to rotate network identity")
		return 1
	}

	utils.PrintBanner()

	controller := identity.NewController()

	ctx := context.Background()
	adapters, err := controller.EnumerateAdapters(ctx)
	if err != nil {
		utils.PrintError("failed to enumerate network adapters: %v", err)
		return 1
	}
	if len(adapters) == 0 {
		utils.PrintError("no usable network adapters found")
		return 1
	}

	cfg, err := loadConfig(opts, adapters)
	if err != nil {
		utils.PrintError("%v", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		utils.PrintError("%v", err)
		return 1
	}

	// A preset can turn on debug logging without a CLI flag; either source
	// enables it. --quiet only takes effect when neither does.
	runLogID := utils.RandHex(4)
	if opts.Debug || cfg.Runtime.DebugEnabled {
		logPath := cfg.Paths.LogDir + "/run_" + runLogID + ".log"
		xlog.Init(logPath)
		xlog.LogInfo("main", "debug mode enabled; logging to "+logPath)
	} else if opts.Quiet {
		xlog.Disable()
	}

	fmt.Print(cfg.Summary())
	if !utils.PromptYesNoDefaultYes("Proceed with this configuration?") {
		utils.PrintInfo("aborted by operator")
		return 0
	}

	snapshot, err := controller.SnapshotIdentity(ctx, cfg.Adapter)
	if err != nil {
		utils.PrintError("failed to snapshot original network identity: %v", err)
		return 1
	}

	runID := utils.RandHex(4)
	runSeed := make([]byte, 32)
	if _, err := rand.Read(runSeed); err != nil {
		utils.PrintError("failed to seed run: %v", err)
		return 1
	}

	summary := report.NewSummary(runID)
	pause := supervisor.NewPauseSignal()

	runCtx, stop := shutdown.Context(context.Background())
	defer stop()

	sup := supervisor.New(cfg, controller, pause, summary)
	var spinner *console.Spinner
	sup.BeforeRotate = func() { spinner = console.StartSpinner("rotating identity") }
	sup.AfterRotate = func(success bool) {
		spinner.Stop()
		if success {
			console.PrintRotation("identity rotated")
		} else {
			console.PrintRotation("identity rotation failed, keeping previous identity")
		}
	}
	go sup.Run(runCtx)

	limiter := rate.NewLimiter(rate.Limit(cfg.NumUsers*4), cfg.NumUsers*2)

	statuses := make([]*walker.StatusCell, 0, cfg.NumUsers)
	var wg sync.WaitGroup
	for i := 0; i < cfg.NumUsers; i++ {
		vu := walker.NewVirtualUser(i+1, cfg, pause, summary, runSeed)
		vu.Limiter = limiter
		statuses = append(statuses, vu.Status)
		wg.Add(1)
		go func(u *walker.VirtualUser) {
			defer wg.Done()
			u.Run(runCtx)
		}(vu)
	}

	renderer := &console.Renderer{Statuses: statuses, MaxDepth: cfg.MaxDepth}
	rendererDone := make(chan struct{})
	go renderer.Run(rendererDone)

	quit := make(chan struct{})
	console.StartKeyboardControl(pause, quit)

	coordinator := &shutdown.Coordinator{
		Controller: controller,
		Snapshot:   snapshot,
		Summary:    summary,
		ReportPath: cfg.Paths.ReportDir + "/" + runID + ".json",
	}

	go func() {
		select {
		case <-quit:
			stop()
		case <-runCtx.Done():
		}
	}()

	coordinator.Run(runCtx)
	close(rendererDone)

	// Give user goroutines a moment to notice cancellation and unwind
	// before the process exits.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	utils.PrintSuccess("run %s complete", runID)
	return 0
}

func loadConfig(opts RunOptions, adapters []identity.Adapter) (*config.Config, error) {
	if opts.ConfigPath != "" {
		cfg, err := config.LoadPreset(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		if opts.SitesPath != "" {
			sites, err := config.LoadSitesFile(opts.SitesPath)
			if err != nil {
				return nil, err
			}
			cfg.Sites = sites
		}
		return cfg, nil
	}

	if opts.SitesPath == "" {
		return nil, fmt.Errorf("app: --sites is required when --config is not given")
	}
	sites, err := config.LoadSitesFile(opts.SitesPath)
	if err != nil {
		return nil, err
	}

	choices := make([]string, len(adapters))
	names := make([]string, len(adapters))
	for i, a := range adapters {
		choices[i] = fmt.Sprintf("%s (MAC: %s, State: %s)", a.Name, a.MAC, a.State)
		names[i] = a.Name
	}
	return config.PromptConfig(sites, choices, names)
}
