package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mpapenbr/racestrategy-service-go/log"
	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

// sessionRun is the pipeline bookkeeping of a session.
// inFlight and watermark are only changed with compare-and-swap.
// gen counts resets; a run only publishes state and result for the
// generation it started in.
type sessionRun struct {
	inFlight  atomic.Bool
	watermark atomic.Int64 // last lap an auto run was started for

	mu    sync.Mutex
	gen   uint64
	state State
	last  *Result
}

func (s *sessionRun) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *sessionRun) setState(gen uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.state = st
	}
}

func (s *sessionRun) getState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setLast stores r and reports false if the session was reset since gen
func (s *sessionRun) setLast(gen uint64, r *Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.last = r
	return true
}

func (s *sessionRun) getLast() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// reset starts a new generation. inFlight is kept so that a run started
// before the reset still blocks the auto-trigger until it returns.
func (s *sessionRun) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = StateIdle
	s.last = nil
	s.watermark.Store(0)
}

func (p *Pipeline) session(key string) *sessionRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[key]; ok {
		return s
	}
	s := &sessionRun{}
	p.sessions[key] = s
	return s
}

type TriggerReason string

const (
	TriggerStarted        TriggerReason = "started"
	TriggerBelowThreshold TriggerReason = "below_threshold"
	TriggerInFlight       TriggerReason = "in_flight"
	TriggerLapProcessed   TriggerReason = "lap_already_processed"
)

// Trigger reports the auto-trigger decision of an ingestion
type Trigger struct {
	Fired      bool          `json:"fired"`
	Reason     TriggerReason `json:"reason"`
	RunID      string        `json:"run_id,omitempty"`
	BufferSize int           `json:"buffer_size"`

	done <-chan *Result
}

// Wait blocks until the triggered run finished or ctx is done.
// It returns false if nothing was triggered or ctx ended first.
func (t Trigger) Wait(ctx context.Context) (*Result, bool) {
	if t.done == nil {
		return nil, false
	}
	select {
	case res := <-t.done:
		return res, res != nil
	case <-ctx.Done():
		return nil, false
	}
}

// OnIngest stores rec (and rc if given) in the session buffer and starts an
// asynchronous run once the buffer holds at least the threshold of records.
// At most one run per session is in flight and a lap triggers at most once.
// The outcome of the run is reported to the sinks, never to the caller.
func (p *Pipeline) OnIngest(session string, rec model.EnrichedRecord, rc *model.RaceContext) Trigger {
	buf := p.buffers.Get(session)
	if rc != nil {
		buf.SetContext(rc)
	}
	size := buf.Push(rec)
	ret := Trigger{BufferSize: size}
	if size < p.threshold {
		ret.Reason = TriggerBelowThreshold
		return ret
	}
	sr := p.session(session)
	if !sr.inFlight.CompareAndSwap(false, true) {
		ret.Reason = TriggerInFlight
		return ret
	}
	for {
		w := sr.watermark.Load()
		if int64(rec.Lap) <= w {
			sr.inFlight.Store(false)
			ret.Reason = TriggerLapProcessed
			return ret
		}
		if sr.watermark.CompareAndSwap(w, int64(rec.Lap)) {
			break
		}
	}

	ret.Fired = true
	ret.Reason = TriggerStarted
	ret.RunID = uuid.NewString()
	p.l.Info("auto-trigger",
		log.String("session", session),
		log.Int("lap", rec.Lap),
		log.Int("buffered", size),
		log.String("run", ret.RunID))
	done := make(chan *Result, 1)
	ret.done = done
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(done)
		res, _ := p.Run(p.ctx, Request{Session: session, Rank: p.autoRank, runID: ret.RunID})
		sr.inFlight.Store(false)
		done <- res
	}()
	return ret
}

// InFlight reports whether an auto-triggered run is active for session
func (p *Pipeline) InFlight(session string) bool {
	return p.session(session).inFlight.Load()
}

// WaitIdle blocks until all auto-triggered runs are finished
func (p *Pipeline) WaitIdle() {
	p.wg.Wait()
}

// ResetSession drops the buffer and bookkeeping of session.
// A run in flight finishes but neither its state nor its result is
// published, and no new auto run starts before it returned.
func (p *Pipeline) ResetSession(session string) {
	p.buffers.Remove(session)
	p.session(session).reset()
}

// Close cancels runs in flight and waits for them
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}
