package entity

// ContextualValue pairs a value with the principal writing it. Every write to
// a descriptor goes through one.
type ContextualValue struct {
	Writer Entity
	Value  any
}

// As builds a ContextualValue.
func As(writer Entity, v any) ContextualValue {
	return ContextualValue{Writer: writer, Value: v}
}
