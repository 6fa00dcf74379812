package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vitwit/databox/types"
)

// Client is the storage network collaborator. Downloads need no
// authentication; uploads require the configured signing identity on the
// network side.
type Client interface {
	// Upload stores bytes and returns the network-assigned content address
	// and stored size.
	Upload(ctx context.Context, data []byte) (handle string, size int, err error)

	// Download fetches the raw bytes for a handle.
	Download(ctx context.Context, handle string) ([]byte, error)
}

// HTTPClient talks to a storage network gateway over HTTP.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client for the gateway at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type uploadResponse struct {
	Handle string `json:"handle"`
	Size   int    `json:"size"`
}

func (c *HTTPClient) Upload(ctx context.Context, data []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/objects", bytes.NewReader(data))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, types.NewStorageUnavailable(fmt.Sprintf("upload failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", 0, types.NewStorageUnavailable(fmt.Sprintf("upload failed: status %d", resp.StatusCode))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, types.NewStorageUnavailable(fmt.Sprintf("upload response unreadable: %v", err))
	}
	if out.Handle == "" {
		return "", 0, types.NewStorageUnavailable("upload response carried no handle")
	}
	return out.Handle, out.Size, nil
}

func (c *HTTPClient) Download(ctx context.Context, handle string) ([]byte, error) {
	u := fmt.Sprintf("%s/objects/%s", c.baseURL, url.PathEscape(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewStorageUnavailable(fmt.Sprintf("download failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewStorageUnavailable(fmt.Sprintf("download failed: status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewStorageUnavailable(fmt.Sprintf("download body unreadable: %v", err))
	}
	return data, nil
}
