package artifact

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/genflow/internal/ctxlog"
)

// UploadSink PUTs artifacts to object storage, e.g. a bucket behind a
// pre-signed or proxy URL. The object key is the artifact path relative to
// Root.
type UploadSink struct {
	BaseURL string
	Root    string
	Client  *http.Client
}

// NewUploadSink validates baseURL and returns a sink using client, or
// http.DefaultClient when client is nil.
func NewUploadSink(baseURL, root string, client *http.Client) (*UploadSink, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid upload url %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &UploadSink{BaseURL: baseURL, Root: root, Client: client}, nil
}

// key maps the artifact's local path to a slash-separated object key.
func (s *UploadSink) key(a Artifact) (string, error) {
	local := filepath.Join(a.Dir, a.name())
	if s.Root != "" {
		rel, err := filepath.Rel(s.Root, local)
		if err != nil {
			return "", fmt.Errorf("artifact '%s' is outside '%s': %w", local, s.Root, err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("artifact '%s' is outside '%s'", local, s.Root)
		}
		local = rel
	}
	return strings.TrimPrefix(filepath.ToSlash(local), "/"), nil
}

// Save uploads a.Data and returns the object URL.
func (s *UploadSink) Save(ctx context.Context, a Artifact) (string, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "upload")

	key, err := s.key(a)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid upload url %q: %w", s.BaseURL, err)
	}
	u.Path = path.Join("/", u.Path, key)
	target := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(a.Data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(a.Data))

	logger.Debug("Uploading artifact", "key", key, "size", len(a.Data), "contentType", contentType)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload of '%s' failed with status: %s", key, resp.Status)
	}
	logger.Info("Uploaded artifact", "key", key, "status", resp.Status)
	return target, nil
}
