package fetch

import (
	"log/slog"
	"time"
)

// SessionInfo describes a download session in observer events.
type SessionInfo struct {
	ID       string
	Location Location
	Range    Range
	Parts    int
	PartSize int64
}

// PartEvent describes a part lifecycle event. Fields that don't apply to an
// event are zero.
type PartEvent struct {
	Session string
	Part    Part
	Attempt int
	Err     error
	Delay   time.Duration // PartRetried: wait before the next attempt
	Elapsed time.Duration // PartCompleted, PartFailed: time since the first attempt
}

// Observer receives download lifecycle events. Part events are delivered from
// the fetch goroutines, so implementations must be safe for concurrent use
// and should return quickly.
type Observer interface {
	SessionStarted(info SessionInfo)
	PartStarted(ev PartEvent)
	PartRetried(ev PartEvent)
	PartCompleted(ev PartEvent)
	PartFailed(ev PartEvent)
	// BufferFull is called when admission of a new part waits for the
	// consumer to free buffer space.
	BufferFull(session string, limit int64)
	SessionFinished(info SessionInfo, state State, err error, elapsed time.Duration)
}

// NopObserver ignores all events. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) SessionStarted(SessionInfo)                               {}
func (NopObserver) PartStarted(PartEvent)                                    {}
func (NopObserver) PartRetried(PartEvent)                                    {}
func (NopObserver) PartCompleted(PartEvent)                                  {}
func (NopObserver) PartFailed(PartEvent)                                     {}
func (NopObserver) BufferFull(string, int64)                                 {}
func (NopObserver) SessionFinished(SessionInfo, State, error, time.Duration) {}

type multiObserver []Observer

// MultiObserver fans events out to all observers in order.
func MultiObserver(observers ...Observer) Observer {
	switch len(observers) {
	case 0:
		return NopObserver{}
	case 1:
		return observers[0]
	}
	return multiObserver(observers)
}

func (m multiObserver) SessionStarted(info SessionInfo) {
	for _, o := range m {
		o.SessionStarted(info)
	}
}

func (m multiObserver) PartStarted(ev PartEvent) {
	for _, o := range m {
		o.PartStarted(ev)
	}
}

func (m multiObserver) PartRetried(ev PartEvent) {
	for _, o := range m {
		o.PartRetried(ev)
	}
}

func (m multiObserver) PartCompleted(ev PartEvent) {
	for _, o := range m {
		o.PartCompleted(ev)
	}
}

func (m multiObserver) PartFailed(ev PartEvent) {
	for _, o := range m {
		o.PartFailed(ev)
	}
}

func (m multiObserver) BufferFull(session string, limit int64) {
	for _, o := range m {
		o.BufferFull(session, limit)
	}
}

func (m multiObserver) SessionFinished(info SessionInfo, state State, err error, elapsed time.Duration) {
	for _, o := range m {
		o.SessionFinished(info, state, err, elapsed)
	}
}

type logObserver struct {
	logger *slog.Logger
}

// LogObserver returns an Observer writing structured records to logger.
// Per-attempt events are logged at debug level, retries and failures at warn
// and error.
func LogObserver(logger *slog.Logger) Observer {
	return logObserver{logger: logger}
}

func (o logObserver) SessionStarted(info SessionInfo) {
	o.logger.Info("download started",
		"session", info.ID,
		"location", string(info.Location),
		"range", info.Range.String(),
		"parts", info.Parts,
		"part_size", info.PartSize,
	)
}

func (o logObserver) PartStarted(ev PartEvent) {
	o.logger.Debug("part started",
		"session", ev.Session,
		"part", ev.Part.Index,
		"range", ev.Part.Range.String(),
		"attempt", ev.Attempt,
	)
}

func (o logObserver) PartRetried(ev PartEvent) {
	o.logger.Warn("part attempt failed, retrying",
		"session", ev.Session,
		"part", ev.Part.Index,
		"range", ev.Part.Range.String(),
		"attempt", ev.Attempt,
		"delay", ev.Delay,
		"error", ev.Err,
	)
}

func (o logObserver) PartCompleted(ev PartEvent) {
	o.logger.Debug("part completed",
		"session", ev.Session,
		"part", ev.Part.Index,
		"bytes", ev.Part.Range.Len(),
		"attempts", ev.Attempt,
		"elapsed", ev.Elapsed,
	)
}

func (o logObserver) PartFailed(ev PartEvent) {
	o.logger.Error("part failed",
		"session", ev.Session,
		"part", ev.Part.Index,
		"range", ev.Part.Range.String(),
		"attempts", ev.Attempt,
		"error", ev.Err,
	)
}

func (o logObserver) BufferFull(session string, limit int64) {
	o.logger.Debug("buffer full, waiting for consumer",
		"session", session,
		"limit", limit,
	)
}

func (o logObserver) SessionFinished(info SessionInfo, state State, err error, elapsed time.Duration) {
	attrs := []any{
		"session", info.ID,
		"state", state.String(),
		"elapsed", elapsed,
	}
	if err != nil {
		o.logger.Error("download finished", append(attrs, "error", err)...)
		return
	}
	o.logger.Info("download finished", attrs...)
}
