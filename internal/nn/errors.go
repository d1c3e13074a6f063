package nn

import (
	"errors"
	"fmt"

	"bayescortex/internal/bayes"
)

var (
	ErrInvalidArgument    = bayes.ErrInvalidArgument
	ErrInvalidIndex       = bayes.ErrInvalidIndex
	ErrDegenerateMarginal = bayes.ErrDegenerateMarginal
	ErrUnknownNode        = errors.New("unknown node")
	ErrBrokenLink         = errors.New("broken parent/child link")
	ErrInvalidAttention   = errors.New("invalid attention")
	ErrInvalidChance      = errors.New("invalid chance")
)

// BrokenLinkError reports a parent in a node's axon list that does not hold
// the node as one of its children. The graph is corrupt when this happens.
type BrokenLinkError struct {
	Node       NodeID
	NodeName   string
	Parent     NodeID
	ParentName string
}

func (e *BrokenLinkError) Error() string {
	return fmt.Sprintf("pair of links is broken: %s(%d) is in the axon of %s(%d) but is not one of its children",
		e.ParentName, e.Parent, e.NodeName, e.Node)
}

func (e *BrokenLinkError) Unwrap() error {
	return ErrBrokenLink
}

// IsFatal reports whether err signals a corrupted graph rather than bad input.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBrokenLink)
}
