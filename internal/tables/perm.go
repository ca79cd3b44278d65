package tables

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/sdtp-io/tablehub/internal/objstore"
)

// Sentinel grantee identities. Public opens a table to any caller; Hub opens
// it to any verified caller, a weaker tier than an individual grant.
const (
	Public = "PUBLIC"
	Hub    = "HUB"
)

// PermissionRecord holds the read grants of one table, persisted as a JSON
// blob at the table's sibling .perm key. Owner is set once at creation and
// never changes. Roles is reserved and currently unused.
type PermissionRecord struct {
	Key   string   `json:"key"`
	Owner string   `json:"owner"`
	Users []string `json:"users"`
	Roles []string `json:"roles"`
}

// defaultRecord is the record implied by a table key with no permission
// blob: owned by the key's owner portion, no explicit grants.
func defaultRecord(k Key) *PermissionRecord {
	return &PermissionRecord{
		Key:   k.String(),
		Owner: k.Owner,
		Users: []string{},
		Roles: []string{},
	}
}

// LoadPermissions reads the permission record for k. An absent blob yields
// the default record, making "no explicit grants yet" indistinguishable from
// "freshly published". A present-but-unparseable blob also yields the
// default record — availability over strictness — but is logged so real
// corruption is not silently masked.
func LoadPermissions(ctx context.Context, store objstore.Store, k Key) (*PermissionRecord, error) {
	data, _, ok, err := store.Get(ctx, k.PermPath())
	if err != nil {
		return nil, err
	}
	if !ok {
		return defaultRecord(k), nil
	}
	var rec PermissionRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.Owner == "" {
		slog.WarnContext(ctx, "Unparseable permission record, using default", "key", k.String(), "err", err)
		return defaultRecord(k), nil
	}
	if rec.Users == nil {
		rec.Users = []string{}
	}
	if rec.Roles == nil {
		rec.Roles = []string{}
	}
	return &rec, nil
}

// SavePermissions writes the record to its table's sibling .perm key.
func SavePermissions(ctx context.Context, store objstore.Store, k Key, rec *PermissionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	_, err = store.Put(ctx, k.PermPath(), data, "application/json")
	return err
}

// Permits reports whether identity may read the table: the owner always may,
// as may any explicitly listed identity, anyone when Public is granted, and
// any verified caller when Hub is granted.
func (r *PermissionRecord) Permits(identity string, verified bool) bool {
	if identity != "" && identity == r.Owner {
		return true
	}
	if identity != "" && slices.Contains(r.Users, identity) {
		return true
	}
	if slices.Contains(r.Users, Public) {
		return true
	}
	return verified && slices.Contains(r.Users, Hub)
}

// Grant updates the user set: replacement when replace is true, otherwise a
// union with the existing grants. The result is deduplicated and sorted, so
// grant order never matters.
func (r *PermissionRecord) Grant(users []string, replace bool) {
	merged := slices.Clone(users)
	if !replace {
		merged = append(merged, r.Users...)
	}
	slices.Sort(merged)
	merged = slices.Compact(merged)
	if merged == nil {
		merged = []string{}
	}
	r.Users = merged
}
