package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ligustah/spanfetch/pkg/fetch"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Concurrency is the configured part concurrency (for display).
	Concurrency int
}

// Reporter renders download progress. It implements [fetch.Observer]; pass
// it as fetch.Config.Observer and call Start and Stop around the download.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	info       fetch.SessionInfo
	state      fetch.State
	finishErr  error
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool

	completedBytes atomic.Int64
	completedParts atomic.Int32
	inProgress     atomic.Int32
	retries        atomic.Int32
	stalls         atomic.Int32
}

var _ fetch.Observer = (*Reporter)(nil)

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// SessionStarted prints the download header.
func (r *Reporter) SessionStarted(info fetch.SessionInfo) {
	r.mu.Lock()
	r.info = info
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[spanfetch] Downloading: %s %s\n", info.Location, info.Range)
	fmt.Fprintf(r.opts.Output, "[spanfetch] Total size: %s | Parts: %d x %s | Concurrency: %d\n",
		FormatBytes(info.Range.Len()),
		info.Parts,
		FormatBytes(info.PartSize),
		r.opts.Concurrency,
	)
}

// PartStarted marks a part as in progress.
func (r *Reporter) PartStarted(fetch.PartEvent) {
	r.inProgress.Add(1)
}

// PartRetried counts a failed attempt.
func (r *Reporter) PartRetried(fetch.PartEvent) {
	r.inProgress.Add(-1)
	r.retries.Add(1)
}

// PartCompleted marks a part as completed.
func (r *Reporter) PartCompleted(ev fetch.PartEvent) {
	r.completedBytes.Add(ev.Part.Range.Len())
	r.completedParts.Add(1)
	r.inProgress.Add(-1)
}

// PartFailed removes a part from in-progress.
func (r *Reporter) PartFailed(fetch.PartEvent) {
	r.inProgress.Add(-1)
}

// BufferFull counts admissions that waited for the consumer.
func (r *Reporter) BufferFull(string, int64) {
	r.stalls.Add(1)
}

// SessionFinished records the terminal state for the final status line.
func (r *Reporter) SessionFinished(_ fetch.SessionInfo, state fetch.State, err error, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.finishErr = err
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	r.mu.Lock()
	info := r.info
	now := time.Now()
	completed := r.completedBytes.Load()

	elapsed := max(now.Sub(r.lastUpdate).Seconds(), 0.1)
	speed := float64(completed-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = completed
	r.mu.Unlock()

	if info.Parts == 0 {
		return
	}

	total := info.Range.Len()
	var percent float64
	eta := "calculating..."
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
		if speed > 0 {
			remaining := float64(total-completed) / speed
			eta = formatDuration(time.Duration(remaining * float64(time.Second)))
		}
	}

	completedParts := int(r.completedParts.Load())
	inProgress := int(r.inProgress.Load())
	pending := max(info.Parts-completedParts-inProgress, 0)

	fmt.Fprintf(r.opts.Output, "\r[spanfetch] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s    ",
		percent,
		FormatBytes(completed),
		FormatBytes(total),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "\n[spanfetch] Parts: %d completed | %d in-progress | %d pending | %d retries    \033[A",
		completedParts,
		inProgress,
		pending,
		r.retries.Load(),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	r.mu.Lock()
	info, state, err := r.info, r.state, r.finishErr
	duration := time.Since(r.startTime)
	r.mu.Unlock()

	completed := r.completedBytes.Load()
	avgSpeed := float64(completed) / math.Max(duration.Seconds(), 0.001)

	status := "Complete!"
	if state != fetch.StateCompleted {
		status = state.String()
	}
	fmt.Fprintf(r.opts.Output, "\r[spanfetch] Progress: %s / %s | Speed: %s/s | %s    \n",
		FormatBytes(completed),
		FormatBytes(info.Range.Len()),
		FormatBytes(int64(avgSpeed)),
		status,
	)
	fmt.Fprintf(r.opts.Output, "[spanfetch] Parts: %d/%d completed | %d retries | %d buffer stalls    \n",
		r.completedParts.Load(),
		info.Parts,
		r.retries.Load(),
		r.stalls.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[spanfetch] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
	if err != nil {
		fmt.Fprintf(r.opts.Output, "[spanfetch] Error: %v\n", err)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes with IEC units ("1.5 KiB").
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// ParseBytes parses a human-readable byte string. Both SI ("256MB") and IEC
// ("256MiB") units are accepted.
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte string %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("byte string %q out of range", s)
	}
	return int64(n), nil
}
