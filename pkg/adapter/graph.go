package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/chillbot-io/openlabels/pkg/apierrors"
	"github.com/chillbot-io/openlabels/pkg/model"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphConfig authenticates against Microsoft Graph via OAuth2 client
// credentials and names the drive to enumerate. The Graph surface used
// here is a handful of REST calls, so this is raw net/http +
// golang.org/x/oauth2 rather than a generated Graph client.
type GraphConfig struct {
	TenantID     string `json:"tenant_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	DriveID      string `json:"drive_id"`
	SiteID       string `json:"site_id"` // SharePoint only
	RootPath     string `json:"root_path"`
	Exposure     string `json:"exposure_level"`
}

// GraphAdapter drives the Microsoft Graph REST API for SharePoint
// document libraries and OneDrive personal drives, which share the same
// `/drives/{id}/root:/path:/children` surface.
type GraphAdapter struct {
	kind   model.AdapterKind
	cfg    GraphConfig
	client *http.Client
}

// NewGraphAdapter builds a GraphAdapter for SharePoint or OneDrive.
func NewGraphAdapter(kind model.AdapterKind, cfg GraphConfig) *GraphAdapter {
	oauthCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return &GraphAdapter{
		kind:   kind,
		cfg:    cfg,
		client: oauth2.NewClient(context.Background(), oauthCfg.TokenSource(context.Background())),
	}
}

func (a *GraphAdapter) exposure() model.ExposureLevel {
	if a.cfg.Exposure != "" {
		return model.ExposureLevel(a.cfg.Exposure)
	}
	return model.ExposureOrgWide
}

type graphDriveItem struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
	ParentReference      struct {
		Path string `json:"path"`
	} `json:"parentReference"`
	Folder *struct{} `json:"folder"`
}

type graphChildrenResponse struct {
	Value    []graphDriveItem `json:"value"`
	NextLink string           `json:"@odata.nextLink"`
}

// Enumerate lists the drive's children recursively, following
// @odata.nextLink pagination. startCursor, when set, is a raw
// @odata.nextLink URL to resume from.
func (a *GraphAdapter) Enumerate(ctx context.Context, startCursor string, yield func(FileInfo) error) error {
	endpoint := startCursor
	if endpoint == "" {
		p := a.cfg.RootPath
		if p == "" {
			endpoint = fmt.Sprintf("%s/drives/%s/root/children", graphBaseURL, url.PathEscape(a.cfg.DriveID))
		} else {
			endpoint = fmt.Sprintf("%s/drives/%s/root:/%s:/children", graphBaseURL, url.PathEscape(a.cfg.DriveID), url.PathEscape(p))
		}
	}

	for endpoint != "" {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var resp graphChildrenResponse
		if err := a.getJSON(ctx, endpoint, &resp); err != nil {
			return err
		}
		for _, item := range resp.Value {
			if item.Folder != nil {
				continue
			}
			modified, _ := time.Parse(time.RFC3339, item.LastModifiedDateTime)
			fi := FileInfo{
				Path:       fmt.Sprintf("%s/%s", item.ParentReference.Path, item.Name),
				Name:       item.Name,
				Size:       item.Size,
				ModifiedAt: modified,
				Exposure:   a.exposure(),
				Cursor:     resp.NextLink,
			}
			if err := yield(fi); err != nil {
				return err
			}
		}
		endpoint = resp.NextLink
	}
	return nil
}

// Read downloads the item's content via the /content endpoint.
func (a *GraphAdapter) Read(ctx context.Context, fi FileInfo) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/drives/%s/root:/%s:/content", graphBaseURL, url.PathEscape(a.cfg.DriveID), url.PathEscape(fi.Path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apierrors.Internal("building Graph download request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apierrors.Transient("downloading from Graph: "+fi.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apierrors.NotFound("Graph item not found: " + fi.Path)
	}
	if resp.StatusCode >= 500 {
		return nil, apierrors.Transient(fmt.Sprintf("Graph download returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, apierrors.Permanent(fmt.Sprintf("Graph download returned %d", resp.StatusCode), nil)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.Transient("reading Graph response body", err)
	}
	return b, nil
}

// GetMetadata re-fetches the item's attributes.
func (a *GraphAdapter) GetMetadata(ctx context.Context, fi FileInfo) (FileInfo, error) {
	endpoint := fmt.Sprintf("%s/drives/%s/root:/%s:", graphBaseURL, url.PathEscape(a.cfg.DriveID), url.PathEscape(fi.Path))
	var item graphDriveItem
	if err := a.getJSON(ctx, endpoint, &item); err != nil {
		return FileInfo{}, err
	}
	modified, _ := time.Parse(time.RFC3339, item.LastModifiedDateTime)
	fi.Size = item.Size
	fi.ModifiedAt = modified
	return fi, nil
}

// TestConnection fetches the drive root to confirm access and auth.
func (a *GraphAdapter) TestConnection(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/drives/%s/root", graphBaseURL, url.PathEscape(a.cfg.DriveID))
	var item graphDriveItem
	return a.getJSON(ctx, endpoint, &item)
}

func (a *GraphAdapter) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apierrors.Internal("building Graph request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return apierrors.Transient("calling Graph API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apierrors.NotFound("Graph resource not found: " + endpoint)
	}
	if resp.StatusCode >= 500 {
		return apierrors.Transient(fmt.Sprintf("Graph API returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return apierrors.Permanent(fmt.Sprintf("Graph API returned %d", resp.StatusCode), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierrors.Transient("decoding Graph response", err)
	}
	return nil
}
