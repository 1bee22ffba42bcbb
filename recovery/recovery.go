package recovery

import "errors"

// Internal decode outcomes. Neither escapes a per-format decoder.
var (
	// ErrRecordSkipped marks a malformed record that was stepped over using its declared length.
	ErrRecordSkipped = errors.New("record skipped")

	// ErrLoopDetected marks a cross reference that would re-enter a node already on the path.
	ErrLoopDetected = errors.New("loop detected")
)

type Strategy interface {
	OnError(ctx Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	Zone       string
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	}
	return "unknown"
}

type Context interface{ Done() <-chan struct{} }
