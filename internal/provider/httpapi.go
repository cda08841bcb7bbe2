package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/imroc/req/v3"

	"github.com/driftsync/driftsync/internal/version"
)

const (
	projectsPath    = "/api/organizations/%s/projects"
	docsPath        = "/api/organizations/%s/projects/%s/docs"
	docPath         = "/api/organizations/%s/projects/%s/docs/%s"
	docContentPath  = "/api/organizations/%s/projects/%s/docs/content"
	headerUserAgent = "User-Agent"
)

// HTTPClient is the req-backed Provider implementation against the remote
// document API. All methods surface non-2xx responses as *APIError so the
// executor can classify rate limiting.
type HTTPClient struct {
	client *req.Client
}

// NewHTTPClient builds a Provider for the given API base URL. The session key
// is sent as a cookie, matching the remote API's browser-derived auth.
func NewHTTPClient(baseURL, sessionKey string) *HTTPClient {
	client := req.C().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetCommonHeader(headerUserAgent, "driftsync/"+version.Version).
		SetCommonCookies(&http.Cookie{Name: "sessionKey", Value: sessionKey})

	return &HTTPClient{client: client}
}

type docDTO struct {
	UUID      string    `json:"uuid"`
	FileName  string    `json:"file_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type projectDTO struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

func (c *HTTPClient) ListProjects(ctx context.Context, orgID string) ([]RemoteProject, error) {
	var dtos []projectDTO
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&dtos).
		Get(fmt.Sprintf(projectsPath, orgID))
	if err := handleAPIError(resp, err, "list projects"); err != nil {
		return nil, err
	}

	projects := make([]RemoteProject, 0, len(dtos))
	for _, d := range dtos {
		projects = append(projects, RemoteProject{ID: d.UUID, Name: d.Name})
	}
	return projects, nil
}

func (c *HTTPClient) ListFiles(ctx context.Context, orgID, projectID string) ([]RemoteFile, error) {
	var dtos []docDTO
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&dtos).
		Get(fmt.Sprintf(docsPath, orgID, projectID))
	if err := handleAPIError(resp, err, "list files"); err != nil {
		return nil, err
	}

	files := make([]RemoteFile, 0, len(dtos))
	for _, d := range dtos {
		files = append(files, RemoteFile{
			ID:        d.UUID,
			Name:      d.FileName,
			Content:   []byte(d.Content),
			CreatedAt: d.CreatedAt,
		})
	}
	return files, nil
}

func (c *HTTPClient) UploadFile(ctx context.Context, orgID, projectID, name string, content []byte) (*RemoteFile, error) {
	var dto docDTO
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"file_name": name,
			"content":   string(content),
		}).
		SetSuccessResult(&dto).
		Post(fmt.Sprintf(docsPath, orgID, projectID))
	if err := handleAPIError(resp, err, "upload file"); err != nil {
		return nil, err
	}

	return &RemoteFile{
		ID:        dto.UUID,
		Name:      dto.FileName,
		Content:   content,
		CreatedAt: dto.CreatedAt,
	}, nil
}

func (c *HTTPClient) DeleteFile(ctx context.Context, orgID, projectID, fileID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf(docPath, orgID, projectID, fileID))
	return handleAPIError(resp, err, "delete file")
}

func (c *HTTPClient) GetFileContent(ctx context.Context, orgID, projectID, name string) ([]byte, error) {
	var dto docDTO
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("file_name", name).
		SetSuccessResult(&dto).
		Get(fmt.Sprintf(docContentPath, orgID, projectID))
	if err := handleAPIError(resp, err, "get file content"); err != nil {
		return nil, err
	}
	return []byte(dto.Content), nil
}

func handleAPIError(resp *req.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsErrorState() {
		return &APIError{
			Status:  resp.StatusCode,
			Op:      op,
			Message: resp.String(),
		}
	}
	return nil
}
