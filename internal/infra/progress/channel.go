package progress

import (
	"context"
	"sync"
	"time"

	"render-orchestrator/internal/domain/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const subscriberBuffer = 16

// Channel fans job progress events out to subscribers. Delivery is
// best effort: a slow or gone subscriber has its events dropped, never
// blocking the publisher or other subscribers. Events carry a per-job
// monotonic sequence number; a subscriber observing the sequence go
// backwards is a bug.
type Channel struct {
	mu       sync.Mutex
	jobs     map[string]*jobStream
	interval time.Duration // heartbeat interval
	log      *zerolog.Logger
}

type jobStream struct {
	seq      uint64
	latest   *model.ProgressEvent // most recent progress snapshot
	terminal *model.ProgressEvent // set once, immutable afterwards
	subs     map[string]chan model.ProgressEvent
}

// Subscription is one subscriber's handle on a job's event stream.
type Subscription struct {
	ID     string
	Events <-chan model.ProgressEvent
	cancel func()
}

func (s *Subscription) Close() { s.cancel() }

func NewChannel(heartbeat time.Duration, logger *zerolog.Logger) *Channel {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	l := logger.With().Str("component", "ProgressChannel").Logger()
	return &Channel{
		jobs:     make(map[string]*jobStream),
		interval: heartbeat,
		log:      &l,
	}
}

// Run emits periodic heartbeats to all subscribers so idle consumers
// can detect dead connections within a bounded interval. Heartbeats do
// not advance job sequence numbers.
func (c *Channel) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.heartbeat()
		}
	}
}

func (c *Channel) heartbeat() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for jobID, js := range c.jobs {
		ev := model.ProgressEvent{JobID: jobID, Seq: js.seq, Stage: model.StageHeartbeat, Timestamp: now}
		for _, ch := range js.subs {
			select {
			case ch <- ev:
			default: // slow subscriber, skip
			}
		}
	}
}

// Publish appends an event to the job's stream and fans it out. The
// sequence number is assigned here, under the lock, so ordering per
// job is total.
func (c *Channel) Publish(jobID string, stage model.EventStage, progress float64, message string, outputs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	js := c.stream(jobID)
	if js.terminal != nil {
		// terminal is final; late publishes are a programming error
		c.log.Warn().Str("job_id", jobID).Str("stage", string(stage)).Msg("publish after terminal dropped")
		return
	}

	js.seq++
	ev := model.ProgressEvent{
		JobID:     jobID,
		Seq:       js.seq,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Outputs:   outputs,
		Timestamp: time.Now(),
	}
	if ev.Terminal() {
		js.terminal = &ev
	} else {
		js.latest = &ev
	}

	for _, ch := range js.subs {
		select {
		case ch <- ev:
		default:
			// best-effort fan-out; replay-on-reconnect covers the gap
		}
	}
}

// Subscribe attaches to a job's stream. Replay semantics: a finished
// job replays only its terminal event; an in-flight job replays the
// most recent progress snapshot, not full history, to bound memory.
func (c *Channel) Subscribe(jobID string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	js := c.stream(jobID)
	id := uuid.NewString()
	ch := make(chan model.ProgressEvent, subscriberBuffer)
	js.subs[id] = ch

	// replay inside the lock so no published event can interleave
	if js.terminal != nil {
		ch <- *js.terminal
	} else if js.latest != nil {
		ch <- *js.latest
	}

	return &Subscription{
		ID:     id,
		Events: ch,
		cancel: func() { c.unsubscribe(jobID, id) },
	}
}

func (c *Channel) unsubscribe(jobID, subID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	js, ok := c.jobs[jobID]
	if !ok {
		return
	}
	if ch, ok := js.subs[subID]; ok {
		delete(js.subs, subID)
		close(ch)
	}
	// drop finished streams nobody is watching
	if len(js.subs) == 0 && js.terminal != nil {
		delete(c.jobs, jobID)
	}
}

// LastTerminal returns the terminal event for a finished job, if any.
func (c *Channel) LastTerminal(jobID string) (model.ProgressEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	js, ok := c.jobs[jobID]
	if !ok || js.terminal == nil {
		return model.ProgressEvent{}, false
	}
	return *js.terminal, true
}

func (c *Channel) stream(jobID string) *jobStream {
	js, ok := c.jobs[jobID]
	if !ok {
		js = &jobStream{subs: make(map[string]chan model.ProgressEvent)}
		c.jobs[jobID] = js
	}
	return js
}
