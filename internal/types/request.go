package types

// RequestType categorizes Drive API calls for logging and error context
type RequestType string

const (
	RequestTypeListOrSearch RequestType = "ListOrSearch"
	RequestTypeDownload     RequestType = "Download"
	RequestTypeExport       RequestType = "Export"
	RequestTypeAuthorize    RequestType = "Authorize"
)

// RequestContext carries per-cycle tracing information through API calls
type RequestContext struct {
	Profile         string
	InvolvedFileIDs []string
	RequestType     RequestType
	TraceID         string
}

// GlobalFlags holds persistent CLI flags
type GlobalFlags struct {
	Config       string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	JSON         bool
}
