package files

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dl-alexandre/gdbackup/internal/api"
	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/types"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// ListingFields are the per-item fields requested from files.list
const ListingFields = "id,name,mimeType,parents,size,modifiedTime"

// Manager lists and downloads Drive files for the mirror
type Manager struct {
	client   *api.Client
	pageSize int
	logger   logging.Logger
}

// NewManager creates a new file manager
func NewManager(client *api.Client, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{
		client:   client,
		pageSize: utils.DefaultPageSize,
		logger:   logger,
	}
}

// List fetches one page of non-trashed items visible to the account
func (m *Manager) List(ctx context.Context, reqCtx *types.RequestContext, pageToken string) (*types.RemoteListing, error) {
	call := m.client.Service().Files.List().
		Q("trashed = false").
		PageSize(int64(m.pageSize)).
		Fields(googleapi.Field("nextPageToken,files(" + ListingFields + ")")).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.FileList, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}

	items := make([]*types.RemoteItem, len(result.Files))
	for i, f := range result.Files {
		items[i] = convertRemoteItem(f)
	}

	return &types.RemoteListing{
		Items:         items,
		NextPageToken: result.NextPageToken,
	}, nil
}

// ListAll lists every item by following pagination
func (m *Manager) ListAll(ctx context.Context, reqCtx *types.RequestContext) ([]*types.RemoteItem, error) {
	var all []*types.RemoteItem
	pageToken := ""
	pages := 0

	for {
		result, err := m.List(ctx, reqCtx, pageToken)
		if err != nil {
			return nil, err
		}
		pages++

		all = append(all, result.Items...)

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	m.logger.WithTraceID(reqCtx.TraceID).Debug("Listing complete",
		logging.F("items", len(all)),
		logging.F("pages", pages))
	return all, nil
}

// Download streams the content of item into w. Workspace documents are
// exported in the format from utils.ExportFormats.
func (m *Manager) Download(ctx context.Context, reqCtx *types.RequestContext, item *types.RemoteItem, w io.Writer) error {
	if !utils.IsDownloadable(item.MimeType) {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s (%s) has no downloadable content", item.Name, item.MimeType)).
			WithContext("fileId", item.ID).
			Build())
	}

	var open func() (*http.Response, error)
	if format, ok := utils.ExportFormats[item.MimeType]; ok {
		reqCtx = api.Derive(reqCtx, types.RequestTypeExport, item.ID)
		call := m.client.Service().Files.Export(item.ID, format.MimeType).Context(ctx)
		open = func() (*http.Response, error) { return call.Download() }
	} else {
		reqCtx = api.Derive(reqCtx, types.RequestTypeDownload, item.ID)
		call := m.client.Service().Files.Get(item.ID).SupportsAllDrives(true).Context(ctx)
		open = func() (*http.Response, error) { return call.Download() }
	}

	resp, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, open)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeDownloadFailed,
			fmt.Sprintf("failed to read content of %s: %s", item.Name, err)).
			WithRetryable(true).
			WithContext("fileId", item.ID).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}
	return nil
}

func convertRemoteItem(f *drive.File) *types.RemoteItem {
	return &types.RemoteItem{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Parents:      f.Parents,
		Size:         f.Size,
		ModifiedTime: f.ModifiedTime,
	}
}
