package httpwire

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AnishMulay/clusterfs/internal/activefs"
	"github.com/AnishMulay/clusterfs/internal/localfs"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	backend, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	s := NewServer("unused:0", backend, nil)
	return s, s.routes()
}

func TestHTTPUploadThenDownloadRoundTrip(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload/a/b.txt", strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/download/a/b.txt", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("downloaded body = %q, want %q", rec.Body.String(), "hello")
	}
}

func TestHTTPDownloadMissingFileReportsErrorCode(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/download/nope.txt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	// Every failure - application error or not - is 500 plus a JSON
	// errorCode body; callers distinguish failures by errorCode, not status.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	code, ok := body["errorCode"]
	if !ok {
		t.Fatalf("error body missing errorCode field: %v", body)
	}
	if int(code.(float64)) != int(activefs.CodeFileNotFound) {
		t.Fatalf("errorCode = %v, want %d (CodeFileNotFound)", code, activefs.CodeFileNotFound)
	}
}

func TestHTTPDownloadRespectsOffsetAndLimitQueryParams(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload/f.txt", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/download/f.txt?offset=3&limit=4", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "3456" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "3456")
	}
}

func TestHTTPDownloadRespectsRangeHeader(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload/f.txt", strings.NewReader("0123456789"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	req = httptest.NewRequest(http.MethodGet, "/download/f.txt", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "2345" {
		t.Fatalf("ranged body = %q, want %q", rec.Body.String(), "2345")
	}
}

func TestHTTPUploadSizedEnforcesDeclaredSize(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/upload/sized.txt", strings.NewReader("short"))
	req.Header.Set("X-Content-Size", "100")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Fatalf("uploading fewer bytes than declared should not succeed, got status %d", rec.Code)
	}
}

func TestHTTPDeleteIsIdempotent(t *testing.T) {
	_, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/delete/absent.txt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("deleting an absent name should succeed, got %d", rec.Code)
	}
}

func TestHTTPCopyAndMove(t *testing.T) {
	_, h := newTestServer(t)

	post := func(path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest(http.MethodPost, path, &buf)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	req := httptest.NewRequest(http.MethodPost, "/upload/src.txt", strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	if rec := post("/copy", copyRequest{Src: "src.txt", Dst: "dst.txt"}); rec.Code != http.StatusOK {
		t.Fatalf("copy status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/download/dst.txt", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Body.String() != "payload" {
		t.Fatalf("copied body = %q, want %q", rec.Body.String(), "payload")
	}

	if rec := post("/move", copyRequest{Src: "dst.txt", Dst: "moved.txt"}); rec.Code != http.StatusOK {
		t.Fatalf("move status = %d, body = %s", rec.Code, rec.Body.String())
	}
	req = httptest.NewRequest(http.MethodGet, "/download/dst.txt", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code == http.StatusOK {
		t.Fatalf("dst.txt should be gone after Move, got status %d", rec.Code)
	}
}

func TestHTTPPing(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ping status = %d", rec.Code)
	}
}

func TestHTTPListFiltersByGlob(t *testing.T) {
	_, h := newTestServer(t)

	for _, name := range []string{"a/one.txt", "a/two.txt", "b/three.log"} {
		req := httptest.NewRequest(http.MethodPost, "/upload/"+name, strings.NewReader("x"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("upload %s status = %d", name, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/list?glob=a/*.txt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal list body: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("list result = %v, want 2 entries", result)
	}
}
