package staticfileserver

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"example.com/streamserver/internal/logger"
	"example.com/streamserver/internal/server"
)

// DirectoryEntry is one row of a directory listing.
type DirectoryEntry struct {
	Name        string
	IsDirectory bool
	Size        int64
}

// DirectoryLister renders a minimal HTML index of a directory.
type DirectoryLister struct {
	log *logger.Logger
}

// NewDirectoryLister creates a DirectoryLister.
func NewDirectoryLister(lg *logger.Logger) *DirectoryLister {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	return &DirectoryLister{log: lg}
}

// ReadEntries lists dir sorted by name (byte-wise, case-sensitive). Symlinks
// are classified by what they point to; a dangling link is listed as a file.
func (d *DirectoryLister) ReadEntries(dir string) ([]DirectoryEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]DirectoryEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		entry := DirectoryEntry{Name: de.Name(), IsDirectory: de.IsDir()}
		info, err := de.Info()
		if err != nil {
			d.log.Warn("Could not get info for directory entry", logger.LogFields{
				"entry": de.Name(),
				"error": err.Error(),
			})
		} else {
			entry.Size = info.Size()
		}
		if de.Type()&os.ModeSymlink != 0 {
			if target, err := os.Stat(filepath.Join(dir, de.Name())); err == nil {
				entry.IsDirectory = target.IsDir()
				entry.Size = target.Size()
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// List writes the listing for target as a 200 text/html response. The page is
// rendered in full before anything is sent, so a read failure becomes a 500.
func (d *DirectoryLister) List(w http.ResponseWriter, req *http.Request, target *ResolvedTarget) error {
	entries, err := d.ReadEntries(target.AbsolutePath)
	if err != nil {
		d.log.Error("Error generating directory listing", logger.LogFields{
			"path":  target.AbsolutePath,
			"error": err.Error(),
		})
		server.SendDefaultErrorResponse(w, req, http.StatusInternalServerError, d.log)
		return fmt.Errorf("list %q: %w", target.RelativePath, err)
	}

	body := RenderListing(target.RelativePath, entries)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodHead {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		d.log.Warn("Failed to write directory listing body", logger.LogFields{
			"path":  target.AbsolutePath,
			"error": err.Error(),
		})
		return err
	}
	return nil
}

// RenderListing builds the HTML page for relPath (slash form, no leading
// slash, empty at the root).
func RenderListing(relPath string, entries []DirectoryEntry) []byte {
	var b bytes.Buffer
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>Directory listing</title>`)
	b.WriteString(`<style>body{font-family:sans-serif;max-width:800px;margin:0 auto;padding:20px;}`)
	b.WriteString(`a{text-decoration:none;}a:hover{text-decoration:underline;}.size{color:#888;margin-left:1em;}</style>`)
	b.WriteString(`</head><body>`)
	fmt.Fprintf(&b, "<h1>Directory: /%s</h1><ul>\n", html.EscapeString(relPath))

	if relPath != "" {
		fmt.Fprintf(&b, "<li><a class=\"parent\" href=\"%s\">[Parent Directory]</a></li>\n",
			html.EscapeString(parentHref(relPath)))
	}

	for _, e := range entries {
		href := linkHref(relPath, e.Name)
		label := e.Name
		if e.IsDirectory {
			href += "/"
			label += "/"
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a>", html.EscapeString(href), html.EscapeString(label))
		if !e.IsDirectory {
			fmt.Fprintf(&b, "<span class=\"size\">%s</span>", humanize.Bytes(uint64(e.Size)))
		}
		b.WriteString("</li>\n")
	}

	b.WriteString("</ul></body></html>")
	return b.Bytes()
}

// parentHref drops the last segment of relPath.
func parentHref(relPath string) string {
	i := strings.LastIndex(relPath, "/")
	if i < 0 {
		return "/"
	}
	return escapeSegments(relPath[:i]) + "/"
}

func linkHref(relPath, name string) string {
	if relPath == "" {
		return "/" + url.PathEscape(name)
	}
	return escapeSegments(relPath) + "/" + url.PathEscape(name)
}

// escapeSegments turns "a/b c" into "/a/b%20c".
func escapeSegments(relPath string) string {
	var sb strings.Builder
	for _, seg := range strings.Split(relPath, "/") {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(seg))
	}
	return sb.String()
}
