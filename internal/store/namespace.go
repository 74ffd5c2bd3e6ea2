package store

import (
	"context"
	"strings"
)

// Namespaced scopes every key of an underlying store under a fixed prefix.
type Namespaced struct {
	inner  RecordStore
	prefix string
}

// Namespace returns a view of s in which every key is prefixed.
func Namespace(s RecordStore, prefix string) *Namespaced {
	return &Namespaced{inner: s, prefix: prefix}
}

// UserKeyPrefix starts the namespace of every user.
const UserKeyPrefix = "user:"

var (
	userIDEscaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	userIDUnescaper = strings.NewReplacer("%3A", ":", "%25", "%")
)

// UserPrefix is the namespace used for a user's records. The id is escaped
// so it never contains the separator and cannot reach into another user's
// namespace.
func UserPrefix(userID string) string {
	return UserKeyPrefix + EscapeUserID(userID) + ":"
}

// EscapeUserID encodes the separator and the escape character of an id.
func EscapeUserID(userID string) string {
	return userIDEscaper.Replace(userID)
}

// UnescapeUserID reverses EscapeUserID.
func UnescapeUserID(escaped string) string {
	return userIDUnescaper.Replace(escaped)
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.inner.Remove(ctx, n.prefix+key)
}

// ScanPrefix returns keys relative to the namespace.
func (n *Namespaced) ScanPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := n.inner.ScanPrefix(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = strings.TrimPrefix(entries[i].Key, n.prefix)
	}
	return entries, nil
}

var _ RecordStore = (*Namespaced)(nil)
