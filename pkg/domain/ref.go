package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlaceholderPrefix marks a temporary identifier standing in for a record
// created elsewhere in the same changeset. The marker is part of the wire
// contract with the change-synthesis collaborator.
const PlaceholderPrefix = "$"

// Ref is an identifier reference: either a concrete row identifier or a
// placeholder token scoped to one changeset. Modeling the distinction as a
// tagged union keeps prefix handling in exactly one place.
type Ref struct {
	value       string
	placeholder bool
}

// ConcreteRef wraps an existing (or soon to exist) row identifier.
func ConcreteRef(id string) Ref {
	return Ref{value: id}
}

// PlaceholderRef wraps a placeholder token without its sentinel prefix.
func PlaceholderRef(token string) Ref {
	return Ref{value: token, placeholder: true}
}

// ParseRef interprets a wire identifier, honoring the placeholder sentinel.
func ParseRef(s string) Ref {
	if strings.HasPrefix(s, PlaceholderPrefix) {
		return PlaceholderRef(strings.TrimPrefix(s, PlaceholderPrefix))
	}
	return ConcreteRef(s)
}

// IsPlaceholder reports whether the reference is a placeholder token.
func (r Ref) IsPlaceholder() bool { return r.placeholder }

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool { return r.value == "" }

// Concrete returns the concrete identifier and false when the reference is a
// placeholder.
func (r Ref) Concrete() (string, bool) {
	if r.placeholder {
		return "", false
	}
	return r.value, true
}

// Token returns the placeholder token without its prefix and false when the
// reference is concrete.
func (r Ref) Token() (string, bool) {
	if !r.placeholder {
		return "", false
	}
	return r.value, true
}

// String renders the wire form, restoring the sentinel for placeholders.
func (r Ref) String() string {
	if r.placeholder {
		return PlaceholderPrefix + r.value
	}
	return r.value
}

// MarshalJSON encodes the wire form.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a wire identifier string.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode ref: %w", err)
	}
	*r = ParseRef(s)
	return nil
}
