package staticfileserver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"example.com/streamserver/internal/logger"
)

// ResolvedTarget is a request path mapped onto the filesystem.
type ResolvedTarget struct {
	// AbsolutePath is the canonical (symlink-free) path, always inside the root.
	AbsolutePath string
	IsDirectory  bool
	// RelativePath is the cleaned request path in slash form, without a
	// leading slash. It is empty for the root itself.
	RelativePath string
	Info         os.FileInfo
}

// PathResolver confines request paths to a document root.
type PathResolver struct {
	root string
	log  *logger.Logger
}

// NewPathResolver canonicalizes root once; the result never changes for the
// lifetime of the resolver.
func NewPathResolver(root string, lg *logger.Logger) (*PathResolver, error) {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", root, err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", root, err)
	}
	fi, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("document root %q: %w", root, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("document root %q is not a directory", root)
	}
	return &PathResolver{root: canonical, log: lg}, nil
}

// Root returns the canonical document root.
func (r *PathResolver) Root() string { return r.root }

// Resolve maps requestPath (a URL path) to a target under the root.
// It returns *TraversalError when the path escapes the root, lexically or
// through a symlink, and *NotFoundError when nothing exists there.
func (r *PathResolver) Resolve(requestPath string) (*ResolvedTarget, error) {
	rel := strings.TrimLeft(requestPath, "/")
	cleaned := path.Clean(rel)
	if cleaned == "." {
		cleaned = ""
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil, r.traversal(requestPath, "")
	}
	if strings.IndexByte(cleaned, 0) >= 0 {
		return nil, &NotFoundError{RequestPath: requestPath}
	}

	joined := filepath.Join(r.root, filepath.FromSlash(cleaned))
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		if isNotExist(err) {
			return nil, &NotFoundError{RequestPath: requestPath, Err: err}
		}
		return nil, fmt.Errorf("canonicalize %q: %w", requestPath, err)
	}
	if !r.contains(canonical) {
		return nil, r.traversal(requestPath, canonical)
	}

	fi, err := os.Stat(canonical)
	if err != nil {
		if isNotExist(err) {
			return nil, &NotFoundError{RequestPath: requestPath, Err: err}
		}
		return nil, fmt.Errorf("stat %q: %w", requestPath, err)
	}

	return &ResolvedTarget{
		AbsolutePath: canonical,
		IsDirectory:  fi.IsDir(),
		RelativePath: cleaned,
		Info:         fi,
	}, nil
}

func (r *PathResolver) contains(p string) bool {
	if p == r.root {
		return true
	}
	prefix := r.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

func (r *PathResolver) traversal(requestPath, resolved string) error {
	r.log.Warn("Attempted path traversal", logger.LogFields{
		"requested_path": requestPath,
		"document_root":  r.root,
	})
	return &TraversalError{RequestPath: requestPath, ResolvedPath: resolved}
}

// isNotExist treats "a path component is a regular file" the same as a
// missing entry.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
