package httpwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/bytestream"
)

var _ activefs.FileSystem = (*Client)(nil)

// Client is an activefs.FileSystem that talks to a Server over HTTP,
// reusing one http.Client (and its connection pool) for the partition's
// lifetime, matching spec.md §5's "open connections per partition" policy.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a Client against a Server listening at baseURL (e.g.
// "http://10.0.0.1:9000").
func NewClient(baseURL string) *Client {
	return &Client{base: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Upload(ctx context.Context, name string) (bytestream.Consumer, error) {
	return c.upload(ctx, name, 0, false)
}

func (c *Client) UploadSized(ctx context.Context, name string, size uint64) (bytestream.Consumer, error) {
	return c.upload(ctx, name, size, true)
}

// upload buffers the consumer's Accept calls into a pipe and streams the
// pipe's read end as the HTTP request body, so the request completes (and
// any server-side error surfaces) only once Ack is called - matching the
// Consumer contract's commit-on-Ack semantics over a request/response
// transport that has no separate "commit" step of its own.
func (c *Client) upload(ctx context.Context, name string, size uint64, sized bool) (bytestream.Consumer, error) {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload/"+url.PathEscape(name), pr)
	if err != nil {
		return nil, err
	}
	if sized {
		req.Header.Set("X-Content-Size", strconv.FormatUint(size, 10))
	}

	go func() {
		resp, err := c.http.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()
		errCh <- responseError(resp)
	}()

	return &uploadConsumer{pw: pw, done: errCh}, nil
}

type uploadConsumer struct {
	pw   *io.PipeWriter
	done chan error
}

func (u *uploadConsumer) Accept(ctx context.Context, chunk bytestream.Chunk) error {
	_, err := u.pw.Write(chunk.Data)
	chunk.Release()
	return err
}

func (u *uploadConsumer) Ack(ctx context.Context) error {
	_ = u.pw.Close()
	return <-u.done
}

func (u *uploadConsumer) Close(cause error) error {
	_ = u.pw.CloseWithError(cause)
	return nil
}

func (c *Client) Append(ctx context.Context, name string, offset uint64) (bytestream.Consumer, error) {
	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	target := fmt.Sprintf("%s/append/%s?offset=%d", c.base, url.PathEscape(name), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		return nil, err
	}
	go func() {
		resp, err := c.http.Do(req)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()
		errCh <- responseError(resp)
	}()
	return &uploadConsumer{pw: pw, done: errCh}, nil
}

func (c *Client) Download(ctx context.Context, name string, offset, limit uint64) (bytestream.Supplier, error) {
	target := fmt.Sprintf("%s/download/%s?offset=%d&limit=%d", c.base, url.PathEscape(name), offset, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if err := responseError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return bytestream.FromReader(resp.Body, 64*1024), nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/delete/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	return c.doVoid(req)
}

func (c *Client) DeleteAll(ctx context.Context, names []string) error {
	return c.postJSON(ctx, "/deleteAll", names)
}

func (c *Client) CopyAll(ctx context.Context, sourceToTarget map[string]string) error {
	return c.postJSON(ctx, "/copyAll", sourceToTarget)
}

func (c *Client) MoveAll(ctx context.Context, sourceToTarget map[string]string) error {
	return c.postJSON(ctx, "/moveAll", sourceToTarget)
}

func (c *Client) Copy(ctx context.Context, src, dst string) error {
	return c.postJSON(ctx, "/copy", copyRequest{Src: src, Dst: dst})
}

func (c *Client) Move(ctx context.Context, src, dst string) error {
	return c.postJSON(ctx, "/move", copyRequest{Src: src, Dst: dst})
}

func (c *Client) List(ctx context.Context, glob string) (map[string]activefs.Metadata, error) {
	target := c.base + "/list?glob=" + url.QueryEscape(glob)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := responseError(resp); err != nil {
		return nil, err
	}
	var out map[string]activefs.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Info(ctx context.Context, name string) (*activefs.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/info/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := responseError(resp); err != nil {
		return nil, err
	}
	var meta *activefs.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) InfoAll(ctx context.Context, names []string) (map[string]activefs.Metadata, error) {
	body, _ := json.Marshal(names)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/infoAll", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := responseError(resp); err != nil {
		return nil, err
	}
	var out map[string]activefs.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/ping", nil)
	if err != nil {
		return err
	}
	return c.doVoid(req)
}

func (c *Client) postJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return c.doVoid(req)
}

func (c *Client) doVoid(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return responseError(resp)
}

// responseError maps a non-2xx response into an activefs error, honoring
// the server's {"errorCode": N} body when present.
func responseError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		ErrorCode int    `json:"errorCode"`
		Error     string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	switch activefs.ErrorCode(body.ErrorCode) {
	case activefs.CodeFileNotFound:
		return activefs.ErrFileNotFound
	case activefs.CodeFileExists:
		return activefs.ErrFileExists
	case activefs.CodeBadPath:
		return activefs.ErrBadPath
	case activefs.CodeBadRange:
		return activefs.ErrBadRange
	case activefs.CodeIsDirectory:
		return activefs.ErrIsDirectory
	case activefs.CodeMalformedGlob:
		return activefs.ErrMalformedGlob
	case activefs.CodeIllegalOffset:
		return activefs.ErrIllegalOffset
	case activefs.CodeUnexpectedData:
		return activefs.ErrUnexpectedData
	case activefs.CodeUnexpectedEndOfStream:
		return activefs.ErrUnexpectedEndOfStream
	default:
		if body.Error != "" {
			return fmt.Errorf("http wire: %s (status %d)", body.Error, resp.StatusCode)
		}
		return fmt.Errorf("http wire: unexpected status %d", resp.StatusCode)
	}
}
