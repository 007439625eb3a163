package engine

import (
	"context"
	"time"
)

type RequestKind int

const (
	ReqStart RequestKind = iota
	ReqStop
	ReqPause
)

// Request is a control message handled inside Run, between ticks.
type Request struct {
	Kind    RequestKind
	Options Options
	Filter  *Filter
	Paused  bool
	// Reply, if set, receives the generation after the request is applied.
	// The send does not block, so Reply must be buffered.
	Reply chan uint64
}

// Control returns the channel Run reads requests from. Other goroutines must
// use it instead of calling Start/Stop/Pause directly while Run is active.
func (e *Engine) Control() chan<- Request { return e.control }

// Run ticks the engine every interval with the wall-clock delta until ctx is
// done. onTick, if set, is called on the loop goroutine after every tick that
// advanced simulated time.
func (e *Engine) Run(ctx context.Context, interval time.Duration, onTick func(*Engine)) error {
	if interval <= 0 {
		interval = e.opts.NominalStep
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.cancel()
			return ctx.Err()
		case req := <-e.control:
			e.handle(req)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if e.Tick(dt) && onTick != nil {
				onTick(e)
			}
		}
	}
}

func (e *Engine) handle(req Request) {
	switch req.Kind {
	case ReqStart:
		e.Start(req.Options, req.Filter)
	case ReqStop:
		e.Stop()
	case ReqPause:
		e.Pause(req.Paused)
	}
	if req.Reply != nil {
		select {
		case req.Reply <- e.generation:
		default:
		}
	}
}
