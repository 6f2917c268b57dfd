package mirror

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/spf13/afero"
)

// Node is one entry of a scanned local tree. Leaves are regular files;
// directories keep their children in listing order.
type Node struct {
	Name     string
	Dir      bool
	Children []*Node
}

// Count returns the number of files and directories below n
func (n *Node) Count() (files, dirs int) {
	for _, child := range n.Children {
		if !child.Dir {
			files++
			continue
		}
		dirs++
		f, d := child.Count()
		files += f
		dirs += d
	}
	return files, dirs
}

// Scan reads the directory at fullPath into a tree named dirName. Ignored
// names and anything that is neither a regular file nor a directory
// (symlinks included) are left out. Nesting deeper than maxDepth fails with
// CORRUPT_HIERARCHY.
func Scan(fs afero.Fs, dirName, fullPath string, ignore *IgnoreMatcher, maxDepth int) (*Node, error) {
	if maxDepth <= 0 {
		maxDepth = utils.DefaultMaxDepth
	}
	root := &Node{Name: dirName, Dir: true}
	if err := scanDir(fs, root, fullPath, "", ignore, 0, maxDepth); err != nil {
		return nil, err
	}
	return root, nil
}

func scanDir(fs afero.Fs, node *Node, fullPath, relPath string, ignore *IgnoreMatcher, depth, maxDepth int) error {
	if depth > maxDepth {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeCorruptHierarchy,
			fmt.Sprintf("directory nesting exceeds %d levels", maxDepth)).
			WithContext("path", fullPath).
			Build())
	}

	entries, err := afero.ReadDir(fs, fullPath)
	if err != nil {
		return filesystemError(fmt.Sprintf("cannot read directory %s", fullPath), fullPath, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		rel := path.Join(relPath, name)
		mode := entry.Mode()

		if mode&os.ModeSymlink != 0 {
			continue
		}
		if ignore.IsIgnored(rel, entry.IsDir()) {
			continue
		}

		switch {
		case entry.IsDir():
			child := &Node{Name: name, Dir: true}
			if err := scanDir(fs, child, filepath.Join(fullPath, name), rel, ignore, depth+1, maxDepth); err != nil {
				return err
			}
			node.Children = append(node.Children, child)
		case mode.IsRegular():
			node.Children = append(node.Children, &Node{Name: name})
		}
	}
	return nil
}
