package types

// FolderMimeType identifies Drive folders in a listing
const FolderMimeType = "application/vnd.google-apps.folder"

// RemoteItem represents a single entry from the Drive file listing
type RemoteItem struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	Parents      []string `json:"parents,omitempty"`
	Size         int64    `json:"size,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
}

// IsFolder reports whether the item is a Drive folder
func (i *RemoteItem) IsFolder() bool {
	return i.MimeType == FolderMimeType
}

// ParentID returns the first parent id, or "" for items without parents
func (i *RemoteItem) ParentID() string {
	if len(i.Parents) == 0 {
		return ""
	}
	return i.Parents[0]
}

// RemoteListing is one page of the Drive file listing
type RemoteListing struct {
	Items         []*RemoteItem `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}
