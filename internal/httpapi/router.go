// Package httpapi serves the public HLS surface: the rolling playlists and
// segments themselves, an IPTV master playlist, a read-only file explorer,
// and a live log tail — no authentication, per the public-surface design.
package httpapi

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// viewableExtensions mirrors the original file explorer's inline-render
// allowlist: small text-ish files render as escaped <pre>, everything
// else downloads as an attachment.
var viewableExtensions = map[string]bool{
	".sh": true, ".py": true, ".txt": true, ".env": true,
	".log": true, ".json": true, ".yml": true, ".yaml": true,
}

// Router builds the five public routes behind the CORS middleware.
type Router struct {
	hlsRoot     string
	projectRoot string
	logFile     string
	channelIDs  []int64
}

// NewRouter constructs a Router. hlsRoot and projectRoot must be absolute
// (or will be made absolute via filepath.Abs) so traversal checks are a
// simple prefix comparison.
func NewRouter(hlsRoot, projectRoot, logFile string, channelIDs []int64) (*Router, error) {
	absHLS, err := filepath.Abs(hlsRoot)
	if err != nil {
		return nil, fmt.Errorf("httpapi: resolve hls root: %w", err)
	}
	absProject, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("httpapi: resolve project root: %w", err)
	}
	return &Router{
		hlsRoot:     absHLS,
		projectRoot: absProject,
		logFile:     logFile,
		channelIDs:  channelIDs,
	}, nil
}

// Engine builds the gin engine with every route registered.
func (rt *Router) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(CORS())

	e.GET("/", rt.status)
	e.GET("/hls/*path", rt.hls)
	e.GET("/playlist.m3u", rt.playlist)
	e.GET("/explorer", rt.explorer)
	e.GET("/live-logs", rt.liveLogs)

	return e
}

func (rt *Router) status(c *gin.Context) {
	c.String(http.StatusOK, "streaming server is running")
}

// hls serves files under hlsRoot, traversal-proof via filepath.Clean plus
// a prefix check, dispatching content type by extension.
func (rt *Router) hls(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	if strings.Contains(rel, "..") {
		c.String(http.StatusBadRequest, "invalid path")
		return
	}

	absPath := filepath.Join(rt.hlsRoot, filepath.Clean("/"+rel))
	if !strings.HasPrefix(absPath, rt.hlsRoot) {
		c.String(http.StatusForbidden, "access denied")
		return
	}

	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		c.String(http.StatusNotFound, "file not found")
		return
	}

	switch {
	case strings.HasSuffix(absPath, ".m3u8"):
		c.Header("Content-Type", "application/x-mpegURL")
	case strings.HasSuffix(absPath, ".ts"):
		c.Header("Content-Type", "video/mp2t")
	}
	c.File(absPath)
}

// playlist emits an IPTV-style #EXTM3U master built from the configured
// channel list.
func (rt *Router) playlist(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s", scheme, c.Request.Host)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i := range rt.channelIDs {
		streamName := fmt.Sprintf("stream%d", i+1)
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-id=\"%s@TG\",%s (720p)\n", streamName, streamName)
		fmt.Fprintf(&b, "%s/hls/%s/live.m3u8\n", base, streamName)
	}

	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(b.String()))
}

// explorer is a read-only, traversal-proof file browser rooted at
// projectRoot; small text files render inline, everything else downloads.
func (rt *Router) explorer(c *gin.Context) {
	rel := strings.TrimPrefix(c.Query("path"), "/")
	viewMode := c.Query("view") == "1"

	absPath := filepath.Join(rt.projectRoot, filepath.Clean("/"+rel))
	if !strings.HasPrefix(absPath, rt.projectRoot) {
		c.String(http.StatusForbidden, "access denied")
		return
	}

	info, err := os.Stat(absPath)
	if err != nil {
		c.String(http.StatusNotFound, "not found")
		return
	}

	if info.IsDir() {
		rt.renderDirectory(c, absPath, rel)
		return
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if viewableExtensions[ext] || viewMode {
		content, err := os.ReadFile(absPath)
		if err != nil {
			c.String(http.StatusInternalServerError, "unable to read file")
			return
		}
		c.Header("Content-Disposition", "inline")
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte("<pre>"+html.EscapeString(string(content))+"</pre>"))
		return
	}

	c.FileAttachment(absPath, filepath.Base(absPath))
}

func (rt *Router) renderDirectory(c *gin.Context, absPath, rel string) {
	entries, err := os.ReadDir(absPath)
	if err != nil {
		c.String(http.StatusInternalServerError, "unable to read directory")
		return
	}

	names := make([]string, 0, len(entries))
	isDir := make(map[string]bool, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
		isDir[e.Name()] = e.IsDir()
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<h2>File Explorer</h2>")
	fmt.Fprintf(&b, "<p>Current: /%s</p><ul>", html.EscapeString(rel))

	if rel != "" {
		parent := filepath.Dir(strings.TrimRight(rel, "/"))
		if parent == "." {
			parent = ""
		}
		fmt.Fprintf(&b, `<li><a href="/explorer?path=%s">..</a></li>`, parent)
	}

	for _, name := range names {
		itemRel := filepath.Join(rel, name)
		icon := "file"
		link := fmt.Sprintf("/explorer?path=%s", itemRel)
		if isDir[name] {
			icon = "dir"
		} else {
			link += "&view=1"
		}
		fmt.Fprintf(&b, `<li>[%s] <a href="%s">%s</a></li>`, icon, link, html.EscapeString(name))
	}
	b.WriteString("</ul>")

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(b.String()))
}

// liveLogs streams logFile to the client as server-sent events, polling
// for new lines every 300ms.
func (rt *Router) liveLogs(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	f, err := os.Open(rt.logFile)
	if err != nil {
		c.SSEvent("message", "log file not found")
		return
	}
	defer f.Close()

	reader := bufio.NewReader(f)

	c.Stream(func(w io.Writer) bool {
		line, err := reader.ReadString('\n')
		if line != "" {
			c.SSEvent("message", strings.TrimRight(line, "\n"))
			return true
		}
		if err != nil {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-time.After(300 * time.Millisecond):
				return true
			}
		}
		return true
	})
}
