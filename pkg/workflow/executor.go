package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddockdb/paddock/pkg/history"
)

// suspend unwinds the workflow goroutine when it awaits a result that is
// not yet in history. The executor recovers it and ends the round with
// whatever was scheduled so far.
type suspend struct{}

// continueAsNew unwinds the workflow when it restarts itself.
type continueAsNew struct {
	input json.RawMessage
}

// nondeterminismError unwinds the workflow when replay diverges from the
// recorded history, typically after a code change that reorders scheduling
// calls.
type nondeterminismError struct {
	msg string
}

func (e *nondeterminismError) Error() string { return "nondeterminism: " + e.msg }

// Outcome classifies how a decision round ended.
type Outcome string

const (
	OutcomeSuspended      Outcome = "suspended"
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeContinuedAsNew Outcome = "continued_as_new"
)

// Request is one decision round over an instance's current history. History
// holds every event of the execution in commit order, including the events
// applied in this round; FirstNewIndex marks where those begin.
type Request struct {
	InstanceID    string
	ExecutionID   uint64
	History       []*history.Event
	FirstNewIndex int
	Logger        zerolog.Logger
}

// Result is what a decision round produced: events to append after
// Request.History, and the terminal state if the workflow reached one.
type Result struct {
	Outcome   Outcome
	NewEvents []*history.Event
	Output    json.RawMessage
	Error     string
	NewInput  json.RawMessage
}

type completionRecord struct {
	ev  *history.Event
	idx int
}

type raisedRecord struct {
	payload json.RawMessage
	tsMS    int64
}

// execution is the per-round replay state behind a Context.
type execution struct {
	instanceID  string
	executionID uint64
	name        string
	input       json.RawMessage

	hist        []*history.Event
	firstNewIdx int
	logger      zerolog.Logger

	schedBySeq map[uint64]*history.Event
	complBySeq map[uint64]completionRecord
	raised     map[string][]raisedRecord
	consumed   map[string]int

	seq       uint64
	nowMS     int64
	replaying bool
	buffer    []*history.Event
}

// Execute runs one decision round: it replays the registered workflow
// function over the recorded history and collects the events the function
// produces past the end of it.
func Execute(reg *Registry, req *Request) (res *Result) {
	if len(req.History) == 0 || req.History[0].Kind != history.KindOrchestrationStarted {
		msg := "corrupt history: missing OrchestrationStarted"
		return &Result{
			Outcome:   OutcomeFailed,
			Error:     msg,
			NewEvents: []*history.Event{{Kind: history.KindOrchestrationFailed, Error: msg}},
		}
	}
	started := req.History[0]

	ex := &execution{
		instanceID:  req.InstanceID,
		executionID: req.ExecutionID,
		name:        started.Name,
		input:       started.Input,
		hist:        req.History,
		firstNewIdx: req.FirstNewIndex,
		logger:      req.Logger,
		schedBySeq:  make(map[uint64]*history.Event),
		complBySeq:  make(map[uint64]completionRecord),
		raised:      make(map[string][]raisedRecord),
		consumed:    make(map[string]int),
		nowMS:       started.TimestampMS,
		replaying:   true,
	}
	ex.index()

	fn, ok := reg.lookup(ex.name)
	if !ok {
		return ex.failed(fmt.Sprintf("unknown workflow: %s", ex.name))
	}

	defer func() {
		switch v := recover().(type) {
		case nil:
		case *suspend:
			res = &Result{Outcome: OutcomeSuspended, NewEvents: ex.buffer}
		case *continueAsNew:
			ex.buffer = append(ex.buffer, &history.Event{Kind: history.KindContinuedAsNew, Input: v.input})
			res = &Result{Outcome: OutcomeContinuedAsNew, NewEvents: ex.buffer, NewInput: v.input}
		case *nondeterminismError:
			res = ex.failed(v.Error())
		default:
			res = ex.failed(fmt.Sprintf("workflow panic: %v", v))
		}
	}()

	output, err := fn(&Context{ex: ex})
	if err != nil {
		return ex.failed(err.Error())
	}
	raw := mustMarshal("workflow output", output)
	ex.buffer = append(ex.buffer, &history.Event{Kind: history.KindOrchestrationCompleted, Output: raw})
	return &Result{Outcome: OutcomeCompleted, NewEvents: ex.buffer, Output: raw}
}

// index builds the seq lookup tables the scheduling primitives match
// against.
func (ex *execution) index() {
	for i, ev := range ex.hist {
		switch ev.Kind {
		case history.KindActivityScheduled, history.KindTimerCreated, history.KindSubOrchestrationScheduled:
			ex.schedBySeq[ev.Seq] = ev
		case history.KindActivityCompleted, history.KindActivityFailed, history.KindTimerFired,
			history.KindSubOrchestrationCompleted, history.KindSubOrchestrationFailed:
			if _, dup := ex.complBySeq[ev.Seq]; !dup {
				ex.complBySeq[ev.Seq] = completionRecord{ev: ev, idx: i}
			}
		case history.KindExternalEventReceived:
			if _, dup := ex.complBySeq[ev.Seq]; !dup {
				ex.complBySeq[ev.Seq] = completionRecord{ev: ev, idx: i}
			}
			ex.consumed[ev.Name]++
		case history.KindExternalEventRaised:
			ex.raised[ev.Name] = append(ex.raised[ev.Name], raisedRecord{payload: ev.Payload, tsMS: ev.TimestampMS})
		}
	}
}

func (ex *execution) failed(msg string) *Result {
	ex.buffer = append(ex.buffer, &history.Event{Kind: history.KindOrchestrationFailed, Error: msg})
	return &Result{Outcome: OutcomeFailed, NewEvents: ex.buffer, Error: msg}
}

func (ex *execution) nextSeq() uint64 {
	ex.seq++
	return ex.seq
}

// emit buffers a new event produced in this round. Producing anything new
// means replay is over.
func (ex *execution) emit(ev *history.Event) {
	ex.replaying = false
	ex.buffer = append(ex.buffer, ev)
}

func (ex *execution) fail(format string, args ...any) {
	panic(&nondeterminismError{msg: fmt.Sprintf(format, args...)})
}

// matchScheduling returns the recorded scheduling event for seq, or nil if
// this invocation is new. A recorded event of a different kind or name means
// the code diverged from history.
func (ex *execution) matchScheduling(seq uint64, kind history.Kind, name string) *history.Event {
	ev, ok := ex.schedBySeq[seq]
	if !ok {
		if c, clash := ex.complBySeq[seq]; clash {
			ex.fail("seq %d: history has %s, workflow invoked %s %q", seq, c.ev.Kind, kind, name)
		}
		return nil
	}
	if ev.Kind != kind || (kind != history.KindTimerCreated && ev.Name != name) {
		ex.fail("seq %d: history has %s %q, workflow invoked %s %q", seq, ev.Kind, ev.Name, kind, name)
	}
	return ev
}

func (ex *execution) scheduleActivity(name string, input json.RawMessage, o *ActivityOptions) *Future {
	seq := ex.nextSeq()
	if ev := ex.matchScheduling(seq, history.KindActivityScheduled, name); ev == nil {
		ex.emit(&history.Event{
			Seq:       seq,
			Kind:      history.KindActivityScheduled,
			Name:      name,
			Input:     input,
			Attempt:   o.Attempt,
			TimeoutMS: o.Timeout.Milliseconds(),
		})
	}
	return ex.newFuture(seq, history.KindActivityScheduled, name)
}

func (ex *execution) scheduleTimer(delay time.Duration) *Future {
	seq := ex.nextSeq()
	if ev := ex.matchScheduling(seq, history.KindTimerCreated, ""); ev == nil {
		ex.emit(&history.Event{
			Seq:      seq,
			Kind:     history.KindTimerCreated,
			FireAtMS: ex.nowMS + delay.Milliseconds(),
		})
	}
	return ex.newFuture(seq, history.KindTimerCreated, "")
}

func (ex *execution) scheduleSubOrchestration(name, childID string, input json.RawMessage, detached bool) *Future {
	seq := ex.nextSeq()
	ev := ex.matchScheduling(seq, history.KindSubOrchestrationScheduled, name)
	if ev == nil {
		ex.emit(&history.Event{
			Seq:             seq,
			Kind:            history.KindSubOrchestrationScheduled,
			Name:            name,
			ChildInstanceID: childID,
			Input:           input,
			Detached:        detached,
		})
	} else if ev.Detached != detached {
		ex.fail("seq %d: sub-orchestration %q changed detached mode", seq, name)
	}
	if detached {
		return nil
	}
	return ex.newFuture(seq, history.KindSubOrchestrationScheduled, name)
}

func (ex *execution) waitEvent(name string) *Future {
	seq := ex.nextSeq()
	if ev, ok := ex.schedBySeq[seq]; ok {
		ex.fail("seq %d: history has %s %q, workflow subscribed to event %q", seq, ev.Kind, ev.Name, name)
	}
	f := &Future{ex: ex, seq: seq, kind: history.KindExternalEventReceived, name: name}
	if c, ok := ex.complBySeq[seq]; ok {
		if c.ev.Kind != history.KindExternalEventReceived || c.ev.Name != name {
			ex.fail("seq %d: history has %s %q, workflow subscribed to event %q", seq, c.ev.Kind, c.ev.Name, name)
		}
		f.resolve(c.ev, c.idx)
		return f
	}

	// No recorded match; pair with the oldest unconsumed raised event.
	pending := ex.raised[name]
	if ex.consumed[name] < len(pending) {
		r := pending[ex.consumed[name]]
		ex.consumed[name]++
		ev := &history.Event{
			Seq:         seq,
			Kind:        history.KindExternalEventReceived,
			TimestampMS: r.tsMS,
			Name:        name,
			Payload:     r.payload,
		}
		idx := len(ex.hist) + len(ex.buffer)
		ex.emit(ev)
		f.resolve(ev, idx)
	}
	return f
}

func (ex *execution) newFuture(seq uint64, kind history.Kind, name string) *Future {
	f := &Future{ex: ex, seq: seq, kind: kind, name: name}
	if c, ok := ex.complBySeq[seq]; ok {
		if !compatibleCompletion(kind, c.ev.Kind) {
			ex.fail("seq %d: history has %s for a %s %q", seq, c.ev.Kind, kind, name)
		}
		f.resolve(c.ev, c.idx)
	}
	return f
}

func compatibleCompletion(sched, compl history.Kind) bool {
	switch sched {
	case history.KindActivityScheduled:
		return compl == history.KindActivityCompleted || compl == history.KindActivityFailed
	case history.KindTimerCreated:
		return compl == history.KindTimerFired
	case history.KindSubOrchestrationScheduled:
		return compl == history.KindSubOrchestrationCompleted || compl == history.KindSubOrchestrationFailed
	}
	return false
}

// await suspends the round unless the future already has a recorded result.
func (ex *execution) await(f *Future) {
	if !f.resolved {
		panic(&suspend{})
	}
	ex.consume(f)
}

// consume advances workflow time to the resolving event and ends replay once
// execution reaches the events applied in this round.
func (ex *execution) consume(f *Future) {
	if f.tsMS > ex.nowMS {
		ex.nowMS = f.tsMS
	}
	if f.idx >= ex.firstNewIdx {
		ex.replaying = false
	}
}

func (ex *execution) selectAny(futures []*Future) int {
	if len(futures) == 0 {
		panic(fmt.Errorf("select requires at least one future"))
	}
	winner := -1
	for i, f := range futures {
		if f == nil {
			panic(fmt.Errorf("select on a nil future"))
		}
		if f.resolved && (winner == -1 || f.idx < futures[winner].idx) {
			winner = i
		}
	}
	if winner == -1 {
		panic(&suspend{})
	}
	ex.consume(futures[winner])
	return winner
}
