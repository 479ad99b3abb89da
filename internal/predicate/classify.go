package predicate

import (
	"github.com/solatis/policykit/internal/session"
	"github.com/solatis/policykit/internal/types"
)

// Kind is the value slot an operator expects.
type Kind int

const (
	// KindString is a single text or list-picked value.
	KindString Kind = iota
	// KindNumber is a single numeric value.
	KindNumber
	// KindArray is a multi-value tag list.
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindArray:
		return "array"
	default:
		return "string"
	}
}

// Shape is the classification of one operator.
type Shape struct {
	Kind Kind
	// NumericElements is set for array operators that accept number lists.
	// Whether elements are emitted as numbers still depends on the key.
	NumericElements bool
}

// Classify decides which value slot op needs. An operator is array-valued
// iff any appliesTo tag starts with "array", otherwise number-valued iff it
// applies to "number", otherwise string-valued. Operators missing from the
// catalog, or a nil session, classify as string.
func Classify(op string, sess *session.Session) Shape {
	if sess == nil {
		return Shape{Kind: KindString}
	}
	o, ok := sess.Operator(op)
	if !ok {
		return Shape{Kind: KindString}
	}
	if o.IsArray() {
		return Shape{
			Kind:            KindArray,
			NumericElements: o.Applies(types.AppliesArrayNumber),
		}
	}
	if o.Applies(types.AppliesNumber) {
		return Shape{Kind: KindNumber}
	}
	return Shape{Kind: KindString}
}
