package trigger

import "context"

// MutationKind classifies an observed change to the monitored subtree.
type MutationKind string

const (
	MutationChildList     MutationKind = "childList"
	MutationCharacterData MutationKind = "characterData"
	MutationAttributes    MutationKind = "attributes"
)

// Mutation is one observed change.
type Mutation struct {
	Kind   MutationKind `json:"kind"`
	Target string       `json:"target,omitempty"`
}

// Qualifies reports whether the mutation can change text content.
// Attribute-only mutations are noise for text monitoring.
func (m Mutation) Qualifies() bool {
	return m.Kind != MutationAttributes
}

// Subscriber delivers batches of mutations for the subtree matched by
// selector (empty selector means the whole document). fn may be called
// from any goroutine.
type Subscriber interface {
	Subscribe(ctx context.Context, selector string, fn func([]Mutation)) (Cancel, error)
}
