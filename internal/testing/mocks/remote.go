package mocks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dl-alexandre/gdbackup/internal/types"
)

// MockRemoteFiles is an in-memory remote file service. Items are listed in
// insertion order and downloads serve Contents[id].
type MockRemoteFiles struct {
	ListAllFunc  func(ctx context.Context) ([]*types.RemoteItem, error)
	DownloadFunc func(ctx context.Context, item *types.RemoteItem, w io.Writer) error

	mu        sync.Mutex
	items     []*types.RemoteItem
	contents  map[string]string
	listCalls int
	downloads []string
}

// NewMockRemoteFiles creates an empty mock remote
func NewMockRemoteFiles() *MockRemoteFiles {
	return &MockRemoteFiles{contents: make(map[string]string)}
}

// AddFile adds a file with content under the given parents
func (m *MockRemoteFiles) AddFile(id, name, content string, parents ...string) *types.RemoteItem {
	item := &types.RemoteItem{
		ID:       id,
		Name:     name,
		MimeType: "text/plain",
		Parents:  parents,
		Size:     int64(len(content)),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	m.contents[id] = content
	return item
}

// AddFolder adds a folder under the given parents
func (m *MockRemoteFiles) AddFolder(id, name string, parents ...string) *types.RemoteItem {
	item := &types.RemoteItem{
		ID:       id,
		Name:     name,
		MimeType: types.FolderMimeType,
		Parents:  parents,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	return item
}

// AddItem adds an arbitrary item with optional content
func (m *MockRemoteFiles) AddItem(item *types.RemoteItem, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	m.contents[item.ID] = content
}

// ListAll returns the configured items
func (m *MockRemoteFiles) ListAll(ctx context.Context, reqCtx *types.RequestContext) ([]*types.RemoteItem, error) {
	m.mu.Lock()
	m.listCalls++
	items := append([]*types.RemoteItem(nil), m.items...)
	m.mu.Unlock()

	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return items, nil
}

// Download writes Contents[item.ID] to w
func (m *MockRemoteFiles) Download(ctx context.Context, reqCtx *types.RequestContext, item *types.RemoteItem, w io.Writer) error {
	m.mu.Lock()
	m.downloads = append(m.downloads, item.ID)
	content, ok := m.contents[item.ID]
	m.mu.Unlock()

	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, item, w)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no content for %s", item.ID)
	}
	_, err := io.Copy(w, strings.NewReader(content))
	return err
}

// ListCalls returns how often ListAll was called
func (m *MockRemoteFiles) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// Downloads returns the ids passed to Download, in call order
func (m *MockRemoteFiles) Downloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.downloads...)
}

// MockAuthorizer counts Authorize calls and returns Err
type MockAuthorizer struct {
	mu    sync.Mutex
	Err   error
	calls int
}

// Authorize records the call
func (a *MockAuthorizer) Authorize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.Err
}

// SetErr changes the error returned by later calls
func (a *MockAuthorizer) SetErr(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Err = err
}

// Calls returns how often Authorize was called
func (a *MockAuthorizer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
