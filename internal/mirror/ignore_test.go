package mirror

import "testing"

func TestIgnoreMatcher(t *testing.T) {
	m := NewIgnoreMatcher([]string{".DS_Store", "*.tmp", "cache/", "  ", "Docs/draft.txt", "!keep.tmp"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{".DS_Store", false, true},
		{"Docs/.DS_Store", false, true},
		{"a.tmp", false, true},
		{"Docs/deep/b.tmp", false, true},
		{"cache", true, true},
		{"Docs/cache", true, true},
		{"cache", false, false},
		{"Docs/draft.txt", false, true},
		{"./Docs/draft.txt", false, true},
		{"Docs/final.txt", false, false},
		{"DS_Store", false, false},
		{"keep.tmp", false, false},
		{"Docs/keep.tmp", false, false},
		{"cache/index.db", false, true},
		{"Docs/.DS_Store", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.IsIgnored(tt.path, tt.isDir); got != tt.want {
				t.Errorf("IsIgnored(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_Nil(t *testing.T) {
	var m *IgnoreMatcher
	if m.IsIgnored(".DS_Store", false) {
		t.Error("nil matcher should ignore nothing")
	}
	if NewIgnoreMatcher(nil).IsIgnored("anything", false) {
		t.Error("empty matcher should ignore nothing")
	}
}
