package storage

import (
	"context"
	"errors"
)

// AnyVersion skips the version check of WriteGroup / DeleteGroup.
const AnyVersion int64 = -1

var (
	ErrGroupNotFound   = errors.New("storage: group not found")
	ErrVersionConflict = errors.New("storage: version conflict")
)

// Group is the raw content of a shared group: field -> encoded value.
// Version is 0 for a group that does not exist and grows by one on every
// successful write.
type Group struct {
	ID      string
	Fields  map[string]string
	Version int64
}

// GroupStore is the durable key/value collaborator. A group is a flat map of
// fields; there are no transactions across groups, only a per-group version
// check.
type GroupStore interface {
	// CreateGroup makes an empty group; it is a no-op when the group exists.
	CreateGroup(ctx context.Context, id string) error
	// ReadGroup returns the requested fields (all when keys is empty) and the
	// group version. ErrGroupNotFound when the group does not exist.
	ReadGroup(ctx context.Context, id string, keys ...string) (*Group, error)
	// WriteGroup sets fields, an empty value removes the field. The group is
	// created when missing. With expectVersion >= 0 the write only happens
	// when the stored version equals it, else ErrVersionConflict.
	WriteGroup(ctx context.Context, id string, fields map[string]string, expectVersion int64) (int64, error)
	// DeleteGroup removes the group; same version rule as WriteGroup.
	DeleteGroup(ctx context.Context, id string, expectVersion int64) error
}
