package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrUnavailable means the server could not be reached or answered with
	// a gateway/unavailable status. Reads fall back to the cache and writes
	// are queued when a call fails with it.
	ErrUnavailable = errors.New("server unavailable")
	// ErrOffline is returned for operations that cannot be deferred.
	ErrOffline = errors.New("operation requires connectivity")
	// ErrNotFound is returned when a post is neither on the server nor cached.
	ErrNotFound = errors.New("blog not found")
)

// APIError is a non-transient error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d: %s", e.StatusCode, e.Message)
}

// UploadedImage is the server's answer to an image upload.
type UploadedImage struct {
	ImageURL  string `json:"imageUrl"`
	ImagePath string `json:"imagePath"`
}

// Remote is the blog API consumed by the engine.
type Remote interface {
	List(ctx context.Context, filter Filter) ([]BlogSummary, error)
	Get(ctx context.Context, id string) (BlogSummary, error)
	Create(ctx context.Context, in BlogInput) (BlogSummary, error)
	Update(ctx context.Context, id string, in BlogInput) (BlogSummary, error)
	Delete(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (BlogSummary, error)
	BatchUpdateOrder(ctx context.Context, updates []OrderUpdate) error
	UploadImage(ctx context.Context, filename string, r io.Reader) (UploadedImage, error)
	Ping(ctx context.Context) error
}

// HTTPRemote talks JSON over HTTP to a pubsync server.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemote returns a client for the API rooted at baseURL
// (e.g. "http://localhost:5001"). A nil client gets a default with timeout.
func NewHTTPRemote(baseURL string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPRemote{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Client exposes the underlying HTTP client, e.g. to share its cookie jar.
func (r *HTTPRemote) Client() *http.Client {
	return r.client
}

func (r *HTTPRemote) List(ctx context.Context, filter Filter) ([]BlogSummary, error) {
	path := "/api/blogs"
	if v := filter.isDraftParam(); v != "" {
		path += "?isDraft=" + v
	}
	var blogs []BlogSummary
	if err := r.do(ctx, http.MethodGet, path, nil, &blogs); err != nil {
		return nil, err
	}
	if blogs == nil {
		blogs = []BlogSummary{}
	}
	return blogs, nil
}

func (r *HTTPRemote) Get(ctx context.Context, id string) (BlogSummary, error) {
	var b BlogSummary
	err := r.do(ctx, http.MethodGet, "/api/blogs/"+url.PathEscape(id), nil, &b)
	return b, err
}

func (r *HTTPRemote) Create(ctx context.Context, in BlogInput) (BlogSummary, error) {
	var b BlogSummary
	err := r.do(ctx, http.MethodPost, "/api/blogs", in, &b)
	return b, err
}

func (r *HTTPRemote) Update(ctx context.Context, id string, in BlogInput) (BlogSummary, error) {
	var b BlogSummary
	err := r.do(ctx, http.MethodPut, "/api/blogs/"+url.PathEscape(id), in, &b)
	return b, err
}

func (r *HTTPRemote) Delete(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/api/blogs/"+url.PathEscape(id), nil, nil)
}

func (r *HTTPRemote) Publish(ctx context.Context, id string) (BlogSummary, error) {
	var b BlogSummary
	err := r.do(ctx, http.MethodPatch, "/api/blogs/"+url.PathEscape(id)+"/publish", nil, &b)
	return b, err
}

func (r *HTTPRemote) BatchUpdateOrder(ctx context.Context, updates []OrderUpdate) error {
	body := struct {
		Updates []OrderUpdate `json:"updates"`
	}{Updates: updates}
	return r.do(ctx, http.MethodPost, "/api/blogs/batch-update-order", body, nil)
}

func (r *HTTPRemote) UploadImage(ctx context.Context, filename string, src io.Reader) (UploadedImage, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("images", filename)
	if err != nil {
		return UploadedImage{}, err
	}
	if _, err := io.Copy(part, src); err != nil {
		return UploadedImage{}, err
	}
	if err := mw.Close(); err != nil {
		return UploadedImage{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/blogs/upload", &buf)
	if err != nil {
		return UploadedImage{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out UploadedImage
	err = r.send(req, &out)
	return out, err
}

// Login opens an admin session; the client must carry a cookie jar.
func (r *HTTPRemote) Login(ctx context.Context, password string) error {
	body := struct {
		Password string `json:"password"`
	}{Password: password}
	return r.do(ctx, http.MethodPost, "/api/login", body, nil)
}

func (r *HTTPRemote) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return r.send(req, out)
}

func (r *HTTPRemote) send(req *http.Request, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		var msg struct {
			Message string `json:"message"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(b, &msg) != nil {
			msg.Message = strings.TrimSpace(string(b))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
