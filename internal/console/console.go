package console

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/inancgumus/screen"
	"github.com/shirou/gopsutil/mem"

	"github.com/duskrange/wanderer/internal/supervisor"
	"github.com/duskrange/wanderer/internal/walker"
)

var termMu sync.Mutex

const (
	cR  = "\033[0m"
	cYl = "\033[33;1m"
	cGn = "\033[32;1m"
	cDm = "\033[2m"
)

// Renderer redraws a status block every tick: one line per virtual user,
// a host RAM line, and a manual-control hint.
type Renderer struct {
	Statuses []*walker.StatusCell
	MaxDepth int
}

// Run redraws the status block every 5s until done is closed.
func (r *Renderer) Run(done <-chan struct{}) {
	screen.Clear()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.draw()
		}
	}
}

func (r *Renderer) draw() {
	termMu.Lock()
	defer termMu.Unlock()

	screen.MoveTopLeft()
	fmt.Printf("%s--- wanderer status ---%s\n", cDm, cR)

	for _, cell := range r.Statuses {
		s := cell.Load()
		url := s.CurrentURL
		if len(url) > 60 {
			url = url[:57] + "..."
		}
		depthFraction := 0.0
		if r.MaxDepth > 0 {
			depthFraction = float64(s.Depth) / float64(r.MaxDepth)
		}
		fmt.Printf("  user %d: %-8s %s %s %s (walks %d)\n",
			s.UserID, s.State, BuildProgressBar(10, depthFraction), url, fmt.Sprintf("%d/%d", s.Depth, r.MaxDepth), s.WalkCount)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("  RAM: %.1f%%\n", v.UsedPercent)
	}
	fmt.Printf("  %s[p]%s pause  %s[c]%s continue  %s[q]%s quit\n", cYl, cR, cGn, cR, cYl, cR)
}

// PrintRotation prints a single colorized rotation-event line.
func PrintRotation(f string, a ...any) {
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Printf("\n%s[rotate]%s %s\n", cYl, cR, fmt.Sprintf(f, a...))
}

// Spinner prints a cycling frame and a running elapsed-time counter on the
// current line while a rotation attempt is in flight. Rotations don't take
// a fixed amount of time: a clean run finishes in the ~2s link-settle wait,
// but one working through an onlink retry or a string of benign errors can
// run for several seconds longer, so the label carries the elapsed time
// rather than a static string.
type Spinner struct {
	label string
	start time.Time
	stop  chan struct{}
	done  chan struct{}
}

// StartSpinner begins animating label immediately and returns a handle
// whose Stop blocks until the animation goroutine has exited.
func StartSpinner(label string) *Spinner {
	s := &Spinner{
		label: label,
		start: time.Now(),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		frames := []rune{'|', '/', '-', '\\'}
		i := 0
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			termMu.Lock()
			fmt.Printf("\r%s [%c] %ds", s.label, frames[i%len(frames)], int(time.Since(s.start).Seconds()))
			termMu.Unlock()
			i++
			time.Sleep(120 * time.Millisecond)
		}
	}()
	return s
}

// Stop halts the animation and clears the line.
func (s *Spinner) Stop() {
	if s == nil {
		return
	}
	close(s.stop)
	<-s.done
	termMu.Lock()
	fmt.Print("\r\033[K")
	termMu.Unlock()
}

// BuildProgressBar renders a fixed-width ASCII progress bar for fraction
// in [0,1].
func BuildProgressBar(width int, fraction float64) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return "[" + string(bar) + "]"
}

// StartKeyboardControl listens on stdin for 'p' (pause), 'c' (continue),
// and 'q' (quit), generalizing the teacher's single-bool interactive
// control into a broadcast PauseSignal. quit is closed when 'q' is
// pressed.
func StartKeyboardControl(pause *supervisor.PauseSignal, quit chan<- struct{}) {
	go func() {
		r := bufio.NewReader(os.Stdin)
		for {
			ch, err := r.ReadByte()
			if err != nil {
				return
			}
			switch ch {
			case 'p', 'P':
				pause.Raise()
				termMu.Lock()
				fmt.Print("\nwanderer> paused. press 'c' to continue or 'q' to quit.\n")
				termMu.Unlock()
			case 'c', 'C':
				pause.Lower()
				termMu.Lock()
				fmt.Print("wanderer> resuming...\n")
				termMu.Unlock()
			case 'q', 'Q':
				pause.Quit()
				termMu.Lock()
				fmt.Print("\nwanderer! quit requested.\n")
				termMu.Unlock()
				close(quit)
				return
			}
		}
	}()
}
