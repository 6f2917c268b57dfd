package utils

import "time"

// OAuth scopes
const (
	ScopeFull             = "https://www.googleapis.com/auth/drive"
	ScopeReadonly         = "https://www.googleapis.com/auth/drive.readonly"
	ScopeMetadataReadonly = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

// DefaultScopes are requested when the configuration names none
var DefaultScopes = []string{ScopeReadonly}

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Backup defaults
const (
	DefaultServerPort     = 16666
	DefaultBackupInterval = 24 * time.Hour
	DefaultRootDir        = "."
	DefaultBaseDir        = "backup"
	DefaultArchiveDir     = "."
	DefaultConcurrency    = 8
	DefaultMaxDepth       = 256
	DefaultPageSize       = 1000
)

// DefaultIgnoreList holds OS metadata files never worth archiving
var DefaultIgnoreList = []string{".DS_Store"}

// Archive naming
const (
	ArchivePrefix = "backup-"
	ArchiveExt    = ".zip"
)

// Schema version
const SchemaVersion = "1.0"

// Google Workspace MIME types
const (
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
	MimeTypeDrawing      = "application/vnd.google-apps.drawing"
	MimeTypeForm         = "application/vnd.google-apps.form"
	MimeTypeScript       = "application/vnd.google-apps.script"
	MimeTypeSite         = "application/vnd.google-apps.site"
	MimeTypeMap          = "application/vnd.google-apps.map"
	MimeTypeFolder       = "application/vnd.google-apps.folder"
	MimeTypeShortcut     = "application/vnd.google-apps.shortcut"
)

// ExportFormat describes how a Workspace document is exported
type ExportFormat struct {
	MimeType  string
	Extension string
}

// ExportFormats maps exportable Workspace MIME types to their download format
var ExportFormats = map[string]ExportFormat{
	MimeTypeDocument:     {MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Extension: ".docx"},
	MimeTypeSpreadsheet:  {MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Extension: ".xlsx"},
	MimeTypePresentation: {MimeType: "application/vnd.openxmlformats-officedocument.presentationml.presentation", Extension: ".pptx"},
	MimeTypeDrawing:      {MimeType: "application/pdf", Extension: ".pdf"},
}

// IsWorkspaceMimeType checks if a MIME type is a Google Workspace type
func IsWorkspaceMimeType(mimeType string) bool {
	switch mimeType {
	case MimeTypeDocument, MimeTypeSpreadsheet, MimeTypePresentation,
		MimeTypeDrawing, MimeTypeForm, MimeTypeScript, MimeTypeSite, MimeTypeMap:
		return true
	}
	return false
}

// IsDownloadable reports whether content for the MIME type can be fetched,
// either directly or via export
func IsDownloadable(mimeType string) bool {
	if mimeType == MimeTypeFolder || mimeType == MimeTypeShortcut {
		return false
	}
	if IsWorkspaceMimeType(mimeType) {
		_, ok := ExportFormats[mimeType]
		return ok
	}
	return true
}
