package fetch

import (
	"fmt"
)

// PartState is the lifecycle state of a part.
type PartState uint8

const (
	PartPending PartState = iota
	PartInFlight
	PartRetrying
	PartDone
	PartFailed
)

func (s PartState) String() string {
	switch s {
	case PartPending:
		return "pending"
	case PartInFlight:
		return "in_flight"
	case PartRetrying:
		return "retrying"
	case PartDone:
		return "done"
	case PartFailed:
		return "failed"
	default:
		return fmt.Sprintf("part_state(%d)", uint8(s))
	}
}

// Part is one range fetch unit of a download plan.
type Part struct {
	Index    int
	Range    Range
	State    PartState
	Attempts int
}

// Plan splits span into consecutive parts of partSize bytes. The last part may
// be shorter. A span no larger than partSize yields a single part.
//
// The result only depends on the arguments, so a retried plan is identical.
func Plan(span Range, partSize int64) ([]Part, error) {
	if partSize <= 0 {
		return nil, planError(span, fmt.Errorf("%w: part size %d must be positive", ErrInvalidRange, partSize))
	}
	if span.Start < 0 || span.Start >= span.End {
		return nil, planError(span, fmt.Errorf("%w: %s is empty or negative", ErrInvalidRange, span))
	}

	n := span.Len() / partSize
	if span.Len()%partSize != 0 {
		n++
	}

	parts := make([]Part, 0, n)
	for off := span.Start; off < span.End; {
		end := span.End
		if span.End-off > partSize {
			end = off + partSize
		}
		parts = append(parts, Part{
			Index: len(parts),
			Range: Range{Start: off, End: end},
		})
		off = end
	}
	return parts, nil
}

func planError(span Range, err error) *Error {
	return &Error{
		Kind:  KindInvalidRange,
		Op:    OpPlan,
		Part:  -1,
		Range: span,
		Err:   err,
	}
}
