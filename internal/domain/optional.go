package domain

type optionalState uint8

const (
	optionalAbsent optionalState = iota
	optionalSet
	optionalCleared
)

// Optional is a field that may be absent, set, or explicitly cleared.
// Absent fields are left untouched on the remote; cleared fields are emptied.
type Optional[T any] struct {
	value T
	state optionalState
}

// Some returns a set Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, state: optionalSet}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Cleared returns an Optional that empties the remote value.
func Cleared[T any]() Optional[T] {
	return Optional[T]{state: optionalCleared}
}

// OptionalString maps "" to absent, which is how tool inputs treat an omitted note.
func OptionalString(s string) Optional[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// Get returns the value and whether it is set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.state == optionalSet
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool { return o.state == optionalSet }

// IsCleared reports whether the value must be emptied remotely.
func (o Optional[T]) IsCleared() bool { return o.state == optionalCleared }

// IsAbsent reports whether the field should be omitted.
func (o Optional[T]) IsAbsent() bool { return o.state == optionalAbsent }
