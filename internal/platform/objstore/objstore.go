// Package objstore talks to the hosted object-storage REST API that
// keeps invoice and offer PDFs. Domain services depend on the Store
// interface so tests can substitute fakes.
package objstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrObjectNotFound indicates the requested object does not exist.
var ErrObjectNotFound = errors.New("objstore: object not found")

// Store abstracts the storage operations the application needs.
type Store interface {
	Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error
	Remove(ctx context.Context, bucket string, paths ...string) error
	SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error)
}

// UploadOptions carries per-object settings.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Client implements Store against the hosted storage HTTP API.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient constructs a storage client for the given API base URL.
func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Upload stores an object under bucket/path.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, opts UploadOptions) error {
	endpoint := fmt.Sprintf("%s/object/%s/%s", c.baseURL, url.PathEscape(bucket), escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.authorize(req)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if len(opts.Metadata) > 0 {
		raw, err := json.Marshal(opts.Metadata)
		if err != nil {
			return err
		}
		req.Header.Set("X-Metadata", base64.StdEncoding.EncodeToString(raw))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return c.checkStatus(resp, "upload")
}

// Remove deletes objects from a bucket. Missing objects are not an error.
func (c *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/object/%s", c.baseURL, url.PathEscape(bucket))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return c.checkStatus(resp, "remove")
}

// SignedURL creates a time-limited download URL for an object.
func (c *Client) SignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	payload, err := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", c.baseURL, url.PathEscape(bucket), escapePath(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrObjectNotFound
	}
	if err := c.checkStatus(resp, "sign"); err != nil {
		return "", err
	}

	var body struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("objstore: sign returned empty url")
	}
	if strings.HasPrefix(body.SignedURL, "http://") || strings.HasPrefix(body.SignedURL, "https://") {
		return body.SignedURL, nil
	}
	return c.baseURL + "/" + strings.TrimLeft(body.SignedURL, "/"), nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
}

func (c *Client) checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode < 400 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("objstore: %s failed with status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// Object paths contain slashes that must survive escaping segment by
// segment.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
