package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID identifies a catalog entity (node metamodel, workflow metamodel,
// intent). IDs are KSUIDs: collision-free without coordination, and
// lexicographic order follows creation order, which keeps catalog listings
// stable without a sort column.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether id is the unset value. A zero ID on a metamodel
// means "not yet persisted"; stores assign one on first put.
func (id ID) IsZero() bool { return id == "" }

// NewID mints a fresh identifier.
func NewID() (ID, error) {
	k, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("core: minting id: %w", err)
	}
	return ID(k.String()), nil
}

// MustNewID mints a fresh identifier, panicking if the platform's entropy
// source fails. For wiring and test fixtures only.
func MustNewID() ID {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseID checks that s is a well-formed identifier and returns it typed.
// The empty string is rejected: callers that mean "no id" keep the zero ID
// instead of parsing one.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("core: empty id")
	}
	if _, err := ksuid.Parse(s); err != nil {
		return "", fmt.Errorf("core: malformed id %q: %w", s, err)
	}
	return ID(s), nil
}
