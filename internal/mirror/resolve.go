package mirror

import (
	"fmt"
	"strings"

	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
)

// FolderIndex maps folder ids to the folders of one listing. It is built
// once per cycle and only used for path resolution within that cycle.
type FolderIndex map[string]*types.RemoteItem

// BuildFolderIndex keeps the folders of a listing
func BuildFolderIndex(items []*types.RemoteItem) FolderIndex {
	index := make(FolderIndex)
	for _, item := range items {
		if item.IsFolder() {
			index[item.ID] = item
		}
	}
	return index
}

// ResolvePath returns the slash-separated path of the folder startFolderID,
// most distant ancestor first. Ids absent from the index are the root
// boundary, so an unknown start id resolves to "/". Ancestors with more than
// one parent fail with UNSUPPORTED_HIERARCHY; cycles and chains deeper than
// maxDepth fail with CORRUPT_HIERARCHY.
func ResolvePath(index FolderIndex, startFolderID string, maxDepth int) (string, error) {
	if maxDepth <= 0 {
		maxDepth = utils.DefaultMaxDepth
	}

	var segments []string
	visited := make(map[string]bool)

	for id := startFolderID; ; {
		folder, ok := index[id]
		if !ok {
			break
		}
		if visited[id] {
			return "", hierarchyError(utils.ErrCodeCorruptHierarchy,
				fmt.Sprintf("folder %q is its own ancestor", folder.Name), id)
		}
		visited[id] = true

		if len(segments) >= maxDepth {
			return "", hierarchyError(utils.ErrCodeCorruptHierarchy,
				fmt.Sprintf("folder nesting exceeds %d levels", maxDepth), startFolderID)
		}
		if len(folder.Parents) > 1 {
			return "", hierarchyError(utils.ErrCodeUnsupportedHierarchy,
				fmt.Sprintf("folder %q has %d parents", folder.Name, len(folder.Parents)), id)
		}

		segments = append(segments, SafeName(folder.Name))
		if len(folder.Parents) == 0 {
			break
		}
		id = folder.Parents[0]
	}

	if len(segments) == 0 {
		return "/", nil
	}

	// Collected child first; the path lists ancestors first
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return "/" + strings.Join(segments, "/"), nil
}

// ResolveItemPath resolves the directory holding item: "/" for no parent,
// the parent's path for one parent, UNSUPPORTED_HIERARCHY for more.
func ResolveItemPath(index FolderIndex, item *types.RemoteItem, maxDepth int) (string, error) {
	switch len(item.Parents) {
	case 0:
		return "/", nil
	case 1:
		return ResolvePath(index, item.Parents[0], maxDepth)
	default:
		return "", hierarchyError(utils.ErrCodeUnsupportedHierarchy,
			fmt.Sprintf("%q has %d parents", item.Name, len(item.Parents)), item.ID)
	}
}

// SafeName makes a Drive name usable as a single local path segment
func SafeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\x00", "")
	switch name {
	case "", ".", "..":
		return strings.Repeat("_", len(name)+1)
	}
	return name
}

func hierarchyError(code, msg, id string) error {
	return utils.NewAppError(utils.NewCLIError(code, msg).
		WithContext("fileId", id).
		Build())
}
