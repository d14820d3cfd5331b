package attr

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ID is the opaque, stable identity of a catalog entry. When the
// underlying filesystem exposes a native stable identifier (e.g. a Lustre
// FID) it is carried in Native and the derived fields are left zero.
// Otherwise ID falls back to the (inode, fs_key, ctime-validator) triple:
// two IDs are equal iff every populated field matches. The ctime
// validator is racy against metadata updates between lookup and use;
// callers of the fallback path must be prepared for stale-id failures
// (this mirrors the source behaviour documented in the design notes).
type ID struct {
	// Native is a filesystem-native stable identifier, opaque to the
	// core. Empty when the filesystem does not provide one.
	Native string

	// Inode is the filesystem inode number, used only in the fallback
	// derived-id path.
	Inode uint64
	// FSKey discriminates between filesystems sharing an inode
	// namespace; derived from filesystem name, filesystem id, or device
	// id depending on configuration. Fixed for a given catalog.
	FSKey uint64
	// CTimeValidator is the entry's ctime at the moment the ID was
	// derived, used to detect inode reuse.
	CTimeValidator int64
}

// HasNative reports whether this ID carries a filesystem-native
// identifier rather than a derived triple.
func (id ID) HasNative() bool { return id.Native != "" }

// Equal reports whether two IDs name the same entry.
func (id ID) Equal(o ID) bool {
	if id.HasNative() || o.HasNative() {
		return id.Native == o.Native
	}
	return id.Inode == o.Inode && id.FSKey == o.FSKey && id.CTimeValidator == o.CTimeValidator
}

// String renders the ID for logging and as a stable map/catalog key.
func (id ID) String() string {
	if id.HasNative() {
		return id.Native
	}
	return fmt.Sprintf("%d:%d:%d", id.FSKey, id.Inode, id.CTimeValidator)
}

// Hash returns a stable 64-bit hash of the ID, used for sharding catalog
// updates by entry (spec §5: "catalog updates for a given entry are
// serialised by entry id").
func (id ID) Hash() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(id.String())
	return h.Sum64()
}

// DeriveFSKey computes the fs_key discriminator for a catalog from a
// configurable source: filesystem name, filesystem id (FSID), or device
// id. The discriminator is fixed once the catalog is created, so this is
// only ever called once at catalog-init time.
func DeriveFSKey(source string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(source)
	return h.Sum64()
}
