// Package tables implements the table-hosting core: typed table keys, SDML
// row tables, co-located permission records, a change-token-validated table
// cache, and the Manager that composes them over an objstore.Store.
package tables

import (
	"fmt"
	"strings"
)

// TableSuffix is the mandatory name suffix marking a blob as an SDML table.
const TableSuffix = ".sdml"

// permSuffix marks the sibling blob holding a table's permission record.
const permSuffix = ".perm"

// Key identifies a stored table as owner/name, where name ends in
// TableSuffix. A Key constructed through NewKey or ParseKey is always valid.
type Key struct {
	Owner string
	Name  string
}

// NewKey validates owner and name and builds a Key.
func NewKey(owner, name string) (Key, error) {
	if owner == "" || strings.Contains(owner, "/") {
		return Key{}, fmt.Errorf("owner %q: %w", owner, ErrInvalidKey)
	}
	if strings.Contains(name, "/") || !strings.HasSuffix(name, TableSuffix) || len(name) == len(TableSuffix) {
		return Key{}, fmt.Errorf("name %q must be a non-empty name ending in %s: %w", name, TableSuffix, ErrInvalidKey)
	}
	return Key{Owner: owner, Name: name}, nil
}

// ParseKey parses "owner/name.sdml". Exactly one separator, both parts
// non-empty, suffix mandatory; anything else is ErrInvalidKey.
func ParseKey(s string) (Key, error) {
	owner, name, found := strings.Cut(s, "/")
	if !found {
		return Key{}, fmt.Errorf("%q is not of the form <owner>/<name>%s: %w", s, TableSuffix, ErrInvalidKey)
	}
	return NewKey(owner, name)
}

// String returns the canonical owner/name form used as the storage key.
func (k Key) String() string {
	return k.Owner + "/" + k.Name
}

// PermPath returns the sibling storage key of the table's permission record,
// formed by swapping the table suffix for the permission suffix.
func (k Key) PermPath() string {
	return k.Owner + "/" + strings.TrimSuffix(k.Name, TableSuffix) + permSuffix
}

// MarshalText lets Key serve as a JSON object key.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the canonical form.
func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
