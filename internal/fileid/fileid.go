// Package fileid provides a deterministic entry ID from a file path for
// imported journal files.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

const scheme = "file://"

// EntryID returns a stable entry ID for the given absolute path. The same
// path always yields the same ID, so re-importing a file updates its entry
// instead of duplicating it.
func EntryID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(scheme+normalized)).String()
}
