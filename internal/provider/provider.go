package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrFileNotFound    = errors.New("provider: file not found")
	ErrProjectNotFound = errors.New("provider: project not found")
)

// RemoteFile is a single file as known to the remote project. ID is the
// provider-assigned handle required for deletion. Content may be empty for
// providers that list metadata only; GetFileContent fills the gap.
type RemoteFile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   []byte    `json:"content,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RemoteProject is a project as known to the remote side.
type RemoteProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Provider is the remote API consumed by the sync engine. Implementations
// must be safe for concurrent use: the workspace orchestrator shares one
// Provider across all per-project pipelines.
type Provider interface {
	ListProjects(ctx context.Context, orgID string) ([]RemoteProject, error)
	ListFiles(ctx context.Context, orgID, projectID string) ([]RemoteFile, error)
	UploadFile(ctx context.Context, orgID, projectID, name string, content []byte) (*RemoteFile, error)
	DeleteFile(ctx context.Context, orgID, projectID, fileID string) error
	GetFileContent(ctx context.Context, orgID, projectID, name string) ([]byte, error)
}

// APIError is a non-2xx response from the remote API.
type APIError struct {
	Status  int
	Op      string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (http %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: http %d", e.Op, e.Status)
}

// RateLimited reports whether the error is the remote's throttling response.
// The API signals rate limiting with 403 rather than 429.
func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusForbidden
}

type rateLimiter interface {
	RateLimited() bool
}

// IsRateLimited reports whether err (anywhere in its chain) is a rate-limit
// response that warrants a bounded retry.
func IsRateLimited(err error) bool {
	var rl rateLimiter
	return errors.As(err, &rl) && rl.RateLimited()
}
