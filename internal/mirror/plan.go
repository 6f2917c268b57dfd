package mirror

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
)

// Placement is where one remote file lands below the staging directory
type Placement struct {
	Item      *types.RemoteItem
	Dir       string // resolved directory, "/" or "/A/B"
	LocalName string
}

// RelPath is the slash-separated path of the placement without a leading slash
func (p Placement) RelPath() string {
	return strings.TrimPrefix(path.Join(p.Dir, p.LocalName), "/")
}

// Plan is the full, resolved layout of one listing. Nothing touches the
// filesystem until a Plan exists.
type Plan struct {
	Dirs       []string
	Files      []Placement
	Skipped    []*types.RemoteItem
	Unresolved []types.FailedFile
}

// PlanOptions controls BuildPlan
type PlanOptions struct {
	MaxDepth int
	// Lenient records hierarchy errors per item instead of failing the plan
	Lenient bool
}

// BuildPlan resolves every item of a listing. Folders become directories
// (empty ones included), downloadable files become placements, and Drive
// items without content are skipped.
func BuildPlan(items []*types.RemoteItem, opts PlanOptions) (*Plan, error) {
	index := BuildFolderIndex(items)
	plan := &Plan{}

	// Names already taken in each directory, folders first so files never
	// shadow a directory
	taken := make(map[string]map[string]bool)
	take := func(dir, name string) {
		if taken[dir] == nil {
			taken[dir] = make(map[string]bool)
		}
		taken[dir][name] = true
	}

	dirSet := make(map[string]bool)
	for _, item := range sortedItems(items) {
		if !item.IsFolder() {
			continue
		}
		dir, err := ResolvePath(index, item.ID, opts.MaxDepth)
		if err != nil {
			if !opts.Lenient {
				return nil, err
			}
			plan.Unresolved = append(plan.Unresolved, failed(item, err))
			continue
		}
		if !dirSet[dir] {
			dirSet[dir] = true
			plan.Dirs = append(plan.Dirs, dir)
			take(path.Dir(dir), path.Base(dir))
		}
	}

	var pending []Placement
	for _, item := range sortedItems(items) {
		if item.IsFolder() {
			continue
		}
		if !utils.IsDownloadable(item.MimeType) {
			plan.Skipped = append(plan.Skipped, item)
			continue
		}
		dir, err := ResolveItemPath(index, item, opts.MaxDepth)
		if err != nil {
			if !opts.Lenient {
				return nil, err
			}
			plan.Unresolved = append(plan.Unresolved, failed(item, err))
			continue
		}
		pending = append(pending, Placement{Item: item, Dir: dir, LocalName: localName(item)})
	}

	for _, p := range pending {
		p.LocalName = uniqueName(taken[p.Dir], p.LocalName)
		take(p.Dir, p.LocalName)
		plan.Files = append(plan.Files, p)
	}

	sort.Strings(plan.Dirs)
	return plan, nil
}

// sortedItems orders a listing by name then id so that duplicate names get
// the same suffixes on every cycle
func sortedItems(items []*types.RemoteItem) []*types.RemoteItem {
	sorted := append([]*types.RemoteItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func localName(item *types.RemoteItem) string {
	name := SafeName(item.Name)
	if format, ok := utils.ExportFormats[item.MimeType]; ok {
		if !strings.EqualFold(path.Ext(name), format.Extension) {
			name += format.Extension
		}
	}
	return name
}

// uniqueName appends " (n)" before the extension, starting at 1, until
// name is free
func uniqueName(taken map[string]bool, name string) string {
	if !taken[name] {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

func failed(item *types.RemoteItem, err error) types.FailedFile {
	return types.FailedFile{ID: item.ID, Path: item.Name, Error: err.Error()}
}
