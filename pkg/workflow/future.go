package workflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paddockdb/paddock/pkg/history"
)

// Future is the pending result of a scheduled activity, timer,
// sub-orchestration or external event subscription. Futures are only valid
// within the workflow function that created them.
type Future struct {
	ex   *execution
	seq  uint64
	kind history.Kind
	name string

	resolved bool
	idx      int   // history position of the resolving event
	tsMS     int64 // timestamp of the resolving event
	output   json.RawMessage
	failure  string
}

// Done reports whether the future has a recorded result. It never suspends.
func (f *Future) Done() bool {
	return f.resolved
}

// Get suspends the workflow until the result is recorded in history, then
// unmarshals the output into out (which may be nil). A recorded failure is
// returned as an error carrying the activity's error string.
func (f *Future) Get(out any) error {
	f.ex.await(f)
	if f.failure != "" {
		return errors.New(f.failure)
	}
	if out != nil && len(f.output) > 0 {
		if err := json.Unmarshal(f.output, out); err != nil {
			panic(fmt.Errorf("unmarshal result of %s seq %d: %w", f.name, f.seq, err))
		}
	}
	return nil
}

// resolve records the history event that settles this future.
func (f *Future) resolve(ev *history.Event, idx int) {
	f.resolved = true
	f.idx = idx
	f.tsMS = ev.TimestampMS
	switch ev.Kind {
	case history.KindActivityCompleted, history.KindSubOrchestrationCompleted:
		f.output = ev.Output
	case history.KindActivityFailed, history.KindSubOrchestrationFailed:
		f.failure = ev.Error
		if f.failure == "" {
			f.failure = "unspecified failure"
		}
	case history.KindExternalEventReceived:
		f.output = ev.Payload
	}
}
