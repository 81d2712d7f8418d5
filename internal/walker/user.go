package walker

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/duskrange/wanderer/internal/config"
	"github.com/duskrange/wanderer/internal/httpx"
	xlog "github.com/duskrange/wanderer/internal/log"
	"github.com/duskrange/wanderer/internal/pacing"
	"github.com/duskrange/wanderer/internal/report"
	"github.com/duskrange/wanderer/internal/supervisor"
)

// maxBodyBytes caps how much of a decoded response body a walk hands to the
// link extractor. The cut is made after the whole body has been read and
// decoded, so it does not bound the memory used while reading.
const maxBodyBytes = 8 << 20 // 8 MiB

// VirtualUser is one long-lived browsing state machine: it owns an HTTP
// client, a visited set, a current URL, and a status cell, and loops
// indefinitely picking sites, walking same-domain links, and switching
// sites on a timer.
type VirtualUser struct {
	ID      int
	Config  *config.Config
	Pause   *supervisor.PauseSignal
	Summary *report.Summary
	RunSeed []byte
	Status  *StatusCell

	// Limiter bounds the aggregate request rate across every virtual user
	// in the run, independent of each user's own dwell pacing. It guards
	// against many users' jittered delays happening to align into a burst;
	// nil disables the ceiling.
	Limiter *rate.Limiter

	dwellIndex int
}

// NewVirtualUser constructs a user ready to Run.
func NewVirtualUser(id int, cfg *config.Config, pause *supervisor.PauseSignal, summary *report.Summary, runSeed []byte) *VirtualUser {
	return &VirtualUser{
		ID:      id,
		Config:  cfg,
		Pause:   pause,
		Summary: summary,
		RunSeed: runSeed,
		Status:  NewStatusCell(id),
	}
}

func (u *VirtualUser) setStatus(mutate func(*UserStatus)) {
	prev := u.Status.Load()
	next := *prev
	mutate(&next)
	u.Status.Store(&next)
}

// Run loops forever, picking a root site, walking it repeatedly until the
// dwell deadline, then picking a new root. It returns only when ctx is
// cancelled.
func (u *VirtualUser) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		u.runDwell(ctx)
	}
}

func (u *VirtualUser) runDwell(ctx context.Context) {
	root := u.Config.Sites[rand.Intn(len(u.Config.Sites))]
	domain := root.Host

	client, err := httpx.BuildClient(u.Config.HTTPTimeout())
	if err != nil {
		xlog.LogWarn("walker.user", fmt.Sprintf("user %d: failed to build http client: %v", u.ID, err))
		select {
		case <-time.After(10 * time.Second):
		case <-ctx.Done():
		}
		return
	}

	behavior := pacing.DeriveDwellBehavior(u.RunSeed, u.ID, u.dwellIndex)
	u.dwellIndex++

	deadline := time.Now().Add(time.Duration(u.Config.SiteSwitchMin) * time.Minute)

	current := root
	requestCount := 0

	for {
		if ctx.Err() != nil {
			return
		}

		visited := map[string]bool{current.String(): true}
		depth := 0

		for depth < u.Config.MaxDepth {
			if ctx.Err() != nil {
				return
			}

			u.waitIfPaused()

			u.setStatus(func(s *UserStatus) {
				s.CurrentURL = current.String()
				s.Depth = depth
				s.State = StateBrowsing
			})

			body, err := u.fetch(ctx, client, current)
			if err != nil {
				u.setStatus(func(s *UserStatus) {
					s.State = StateWaiting
					s.LastError = err.Error()
				})
				xlog.LogWarn("walker.user", fmt.Sprintf("user %d: abandoning walk at %s: %v", u.ID, current, err))
				u.Summary.IncTransient()
				break
			}
			u.Summary.IncRequests()

			u.setStatus(func(s *UserStatus) { s.State = StateWaiting })

			requestCount++
			delaySecs := pacing.Jitter(u.Config.RequestDelayMin * 60)
			if !u.sleep(ctx, time.Duration(delaySecs*float64(time.Second))) {
				return
			}
			if behavior.BurstEvery > 0 && requestCount%behavior.BurstEvery == 0 {
				if !u.sleep(ctx, behavior.BurstExtra) {
					return
				}
			}

			u.waitIfPaused()

			links := ExtractLinks(body, current)
			sameDomain := FilterSameDomain(links, domain)
			picked := PickRandomLinks(sameDomain, 1, visited)
			if len(picked) == 0 {
				break
			}
			next := picked[0]
			visited[next.String()] = true
			current = next
			depth++
			u.Summary.IncLinks()
		}

		u.Summary.IncWalks()
		u.setStatus(func(s *UserStatus) { s.WalkCount++ })
		current = root

		if time.Now().After(deadline) {
			u.Summary.IncDwells()
			return
		}
	}
}

func (u *VirtualUser) waitIfPaused() {
	if u.Pause.IsPaused() {
		u.setStatus(func(s *UserStatus) { s.State = StatePaused })
	}
	u.Pause.Wait()
}

func (u *VirtualUser) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (u *VirtualUser) fetch(ctx context.Context, client *httpx.Client, target *url.URL) ([]byte, error) {
	if u.Limiter != nil {
		if err := u.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client.ApplyHeaders(req, "")

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}

	body, err := httpx.DecodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", target, err)
	}
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	return body, nil
}
