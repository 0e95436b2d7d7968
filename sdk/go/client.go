package assessvaultsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal assessvault HTTP API client.
type Client struct {
	BaseURL string
	// BasePath is the API prefix; empty means /api.
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 60 * time.Second,
	}
}

// Entry is one child of a listed folder.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Kind        string `json:"kind"`
	Size        *int64 `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

func (e Entry) IsFolder() bool { return e.Kind == "folder" }

// Deletion reports what a recursive delete removed.
type Deletion struct {
	Success      bool     `json:"success"`
	Message      string   `json:"message"`
	DeletedItems []string `json:"deletedItems"`
	Count        int      `json:"count"`
}

// SignedURL is a time limited download link.
type SignedURL struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// File is a downloaded attachment.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Event represents an activity log entry.
type Event struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	Folder  string         `json:"folder"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Principal is the caller as seen by the server.
type Principal struct {
	ActorID     string   `json:"actor_id"`
	Source      string   `json:"source"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// ListFolders lists the children of prefix; empty lists the bucket root.
func (c *Client) ListFolders(ctx context.Context, prefix string) ([]Entry, error) {
	var resp struct {
		Items []Entry `json:"items"`
	}
	endpoint := "folders"
	if prefix != "" {
		endpoint += "?prefix=" + url.QueryEscape(prefix)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// DownloadFolder fetches folder as a zip archive.
func (c *Client) DownloadFolder(ctx context.Context, folder string) (File, error) {
	return c.file(ctx, http.MethodGet, "download/"+url.PathEscape(folder), nil)
}

// DeleteFolder removes folder recursively.
func (c *Client) DeleteFolder(ctx context.Context, folder string) (Deletion, error) {
	var resp Deletion
	err := c.do(ctx, http.MethodDelete, "folder/"+url.PathEscape(folder), nil, &resp)
	return resp, err
}

// SignedURL requests a download link for one object. ttl zero uses the server default.
func (c *Client) SignedURL(ctx context.Context, path string, ttl time.Duration) (SignedURL, error) {
	q := url.Values{"path": {path}}
	if ttl > 0 {
		q.Set("ttl", strconv.Itoa(int(ttl/time.Second)))
	}
	var resp SignedURL
	err := c.do(ctx, http.MethodGet, "signed-url?"+q.Encode(), nil, &resp)
	return resp, err
}

// ConvertDocument renders a stored JSON object as .docx.
func (c *Client) ConvertDocument(ctx context.Context, path string) (File, error) {
	return c.file(ctx, http.MethodGet, "documents?path="+url.QueryEscape(path), nil)
}

// HorseTable renders a horse list payload as .docx.
func (c *Client) HorseTable(ctx context.Context, payload []byte) (File, error) {
	return c.file(ctx, http.MethodPost, "documents/horse-table", payload)
}

// Report renders a compliance report payload as .docx.
func (c *Client) Report(ctx context.Context, payload []byte) (File, error) {
	return c.file(ctx, http.MethodPost, "documents/report", payload)
}

// Activity returns a page of recent events, newest first.
func (c *Client) Activity(ctx context.Context, limit int, evtType, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if evtType != "" {
		q.Set("type", evtType)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "activity"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Me returns the authenticated principal.
func (c *Client) Me(ctx context.Context) (Principal, error) {
	var resp Principal
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// DevLogin mints a token on servers with dev login enabled.
func (c *Client) DevLogin(ctx context.Context, actorID string, roles []string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"actor_id": actorID, "roles": roles}, &resp)
	return resp.Token, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.send(ctx, method, endpoint, buf.Bytes())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) file(ctx context.Context, method, endpoint string, payload []byte) (File, error) {
	resp, err := c.send(ctx, method, endpoint, payload)
	if err != nil {
		return File{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, err
	}
	f := File{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		f.Filename = params["filename"]
	}
	return f, nil
}

// send performs the request and converts non-2xx responses to *APIError.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) url(endpoint string) string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
