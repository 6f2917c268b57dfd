package testing

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/dl-alexandre/gdbackup/internal/types"
)

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Profile:         "test-profile",
		InvolvedFileIDs: []string{},
		RequestType:     types.RequestTypeListOrSearch,
		TraceID:         "test-trace-id",
	}
}

// TestFile creates a remote file for testing
func TestFile(id, name string, parents ...string) *types.RemoteItem {
	return &types.RemoteItem{
		ID:       id,
		Name:     name,
		MimeType: "text/plain",
		Parents:  parents,
		Size:     1024,
	}
}

// TestFolder creates a remote folder for testing
func TestFolder(id, name string, parents ...string) *types.RemoteItem {
	return &types.RemoteItem{
		ID:       id,
		Name:     name,
		MimeType: types.FolderMimeType,
		Parents:  parents,
	}
}

// TestChain returns depth nested folders f1/f2/.../fN, f1 at the root.
// Folder i is named "L<i>".
func TestChain(depth int) []*types.RemoteItem {
	items := make([]*types.RemoteItem, 0, depth)
	parent := ""
	for i := 1; i <= depth; i++ {
		id := fmt.Sprintf("f%d", i)
		name := fmt.Sprintf("L%d", i)
		if parent == "" {
			items = append(items, TestFolder(id, name))
		} else {
			items = append(items, TestFolder(id, name, parent))
		}
		parent = id
	}
	return items
}

// WriteFiles creates base and the given relative files below it
func WriteFiles(t *testing.T, fs afero.Fs, base string, files map[string]string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(base, 0755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(base, name), []byte(content), 0644))
	}
}

// ReadZip returns entry name -> content ("" for directories) and fails
// the test when an entry name appears twice.
func ReadZip(t *testing.T, fs afero.Fs, name string) map[string]string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		_, dup := entries[f.Name]
		require.False(t, dup, "duplicate entry %s", f.Name)
		entries[f.Name] = string(content)
	}
	return entries
}
