package dom

// MutationType is the kind of change a record describes.
type MutationType string

const (
	MutationChildList  MutationType = "childList"
	MutationAttributes MutationType = "attributes"
	MutationText       MutationType = "characterData"
	// MutationOverflow means the source dropped records; consumers must
	// assume anything changed.
	MutationOverflow MutationType = "overflow"
)

// MutationRecord is one observed change below an observed root.
type MutationRecord struct {
	Type    MutationType
	Target  Element
	Added   []Element
	Removed []Element
	Name    string // attribute name for MutationAttributes
}

// MutationSource is the host environment's change-notification primitive.
//
// interest is a CSS selector hint (usually the post tag). Sources may use it
// to pre-filter records, but a record whose added nodes match or contain
// interest must never be dropped.
type MutationSource interface {
	Observe(root Element, interest string) (Subscription, error)
}

// Subscription is a live mutation feed. Stop is idempotent; C is closed
// once the feed ends.
type Subscription interface {
	C() <-chan []MutationRecord
	Stop()
}
