package httpapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRouter(t *testing.T) (*Router, string) {
	t.Helper()
	root := t.TempDir()
	hlsDir := filepath.Join(root, "hls")
	if err := os.MkdirAll(filepath.Join(hlsDir, "stream1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hlsDir, "stream1", "live.m3u8"), []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write m3u8: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hlsDir, "stream1", "1.ts"), []byte("tsdata"), 0o644); err != nil {
		t.Fatalf("write ts: %v", err)
	}
	logFile := filepath.Join(root, "log.txt")
	if err := os.WriteFile(logFile, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	rt, err := NewRouter(hlsDir, root, logFile, []int64{111, 222})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return rt, root
}

func TestRouterStatus(t *testing.T) {
	rt, _ := newTestRouter(t)
	e := rt.Engine()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRouterHLSContentTypes(t *testing.T) {
	rt, _ := newTestRouter(t)
	e := rt.Engine()

	cases := []struct {
		path        string
		wantType    string
		wantStatus  int
	}{
		{"/hls/stream1/live.m3u8", "application/x-mpegURL", http.StatusOK},
		{"/hls/stream1/1.ts", "video/mp2t", http.StatusOK},
		{"/hls/stream1/missing.ts", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)
		if w.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.path, w.Code, tc.wantStatus)
		}
		if tc.wantType != "" && w.Header().Get("Content-Type") != tc.wantType {
			t.Fatalf("%s: content-type = %q, want %q", tc.path, w.Header().Get("Content-Type"), tc.wantType)
		}
	}
}

func TestRouterHLSRejectsTraversal(t *testing.T) {
	rt, _ := newTestRouter(t)
	e := rt.Engine()

	req := httptest.NewRequest(http.MethodGet, "/hls/..%2f..%2fetc%2fpasswd", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		t.Fatalf("traversal path returned 200")
	}
}

func TestRouterPlaylistM3U(t *testing.T) {
	rt, _ := newTestRouter(t)
	e := rt.Engine()

	req := httptest.NewRequest(http.MethodGet, "/playlist.m3u", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "#EXTM3U\n") {
		t.Fatalf("body does not start with #EXTM3U: %q", body)
	}
	if !strings.Contains(body, "stream1") || !strings.Contains(body, "stream2") {
		t.Fatalf("body missing expected stream entries: %q", body)
	}
	if !strings.Contains(body, "/hls/stream1/live.m3u8") {
		t.Fatalf("body missing stream1 playlist URL: %q", body)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	rt, _ := newTestRouter(t)
	e := rt.Engine()

	req := httptest.NewRequest(http.MethodOptions, "/hls/stream1/live.m3u8", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("OPTIONS status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing wildcard CORS header")
	}
}

func TestRouterExplorerDirectoryListing(t *testing.T) {
	rt, root := newTestRouter(t)
	e := rt.Engine()
	_ = root

	req := httptest.NewRequest(http.MethodGet, "/explorer", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "hls") {
		t.Fatalf("directory listing missing hls entry: %q", w.Body.String())
	}
}

func TestRouterExplorerRejectsTraversal(t *testing.T) {
	rt, _ := newTestRouter(t)
	e := rt.Engine()

	req := httptest.NewRequest(http.MethodGet, "/explorer?path=..%2f..%2fetc%2fpasswd", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		t.Fatalf("explorer traversal returned 200")
	}
}

func TestRouterExplorerInlineRendersTextFile(t *testing.T) {
	rt, root := newTestRouter(t)
	e := rt.Engine()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("<script>hi</script>"), 0o644); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/explorer?path=notes.txt", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "<script>hi</script>") {
		t.Fatalf("HTML was not escaped: %q", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Fatalf("expected escaped content, got %q", body)
	}
}
