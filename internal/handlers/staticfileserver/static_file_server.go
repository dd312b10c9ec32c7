package staticfileserver

import (
	"errors"
	"io/fs"
	"net/http"

	"example.com/streamserver/internal/config"
	"example.com/streamserver/internal/logger"
	"example.com/streamserver/internal/server"
)

const handlerName = "StaticFileServer"

// StaticFileServer is the per-request dispatcher: it resolves the path and
// hands the request to the directory lister or the file streamer. It holds
// only immutable state and is safe for concurrent use.
type StaticFileServer struct {
	resolver     *PathResolver
	mimeResolver *MimeTypeResolver
	streamer     *FileStreamer
	lister       *DirectoryLister
	log          *logger.Logger
}

// New creates a StaticFileServer serving cfg.Root.
func New(cfg config.FilesConfig, lg *logger.Logger) (*StaticFileServer, error) {
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	resolver, err := NewPathResolver(cfg.Root, lg)
	if err != nil {
		lg.Error("StaticFileServer: invalid document root", logger.LogFields{
			"root":  cfg.Root,
			"error": err.Error(),
		})
		return nil, err
	}
	return &StaticFileServer{
		resolver:     resolver,
		mimeResolver: NewMimeTypeResolver(cfg.MimeTypes),
		streamer:     NewFileStreamer(cfg.ChunkSize, cfg.CacheMaxAge, lg),
		lister:       NewDirectoryLister(lg),
		log:          lg,
	}, nil
}

// Root returns the canonical directory being served.
func (sfs *StaticFileServer) Root() string { return sfs.resolver.Root() }

func (sfs *StaticFileServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
	default:
		sfs.log.Info(handlerName+": method not allowed", logger.LogFields{
			"method": req.Method,
			"path":   req.URL.Path,
		})
		w.Header().Set("Allow", "GET, HEAD")
		server.SendDefaultErrorResponse(w, req, http.StatusMethodNotAllowed, sfs.log)
		return
	}

	target, err := sfs.resolver.Resolve(req.URL.Path)
	if err != nil {
		sfs.sendResolveError(w, req, err)
		return
	}

	if target.IsDirectory {
		if err := sfs.lister.List(w, req, target); err != nil {
			sfs.log.Debug(handlerName+": directory listing failed", logger.LogFields{
				"path":  target.RelativePath,
				"error": err.Error(),
			})
		}
		return
	}
	sfs.serveFile(w, req, target)
}

func (sfs *StaticFileServer) serveFile(w http.ResponseWriter, req *http.Request, target *ResolvedTarget) {
	contentType := sfs.mimeResolver.GetMimeType(target.AbsolutePath)

	br, err := NegotiateRange(req.Header.Get("Range"), uint64(target.Info.Size()))
	if err != nil {
		var rangeErr *RangeNotSatisfiableError
		if errors.As(err, &rangeErr) {
			sfs.log.Info(handlerName+": range not satisfiable", logger.LogFields{
				"path":  target.RelativePath,
				"range": rangeErr.Header,
				"size":  rangeErr.TotalSize,
			})
			w.Header().Set("Content-Range", rangeErr.ContentRange())
			server.SendDefaultErrorResponse(w, req, http.StatusRequestedRangeNotSatisfiable, sfs.log)
			return
		}
		sfs.log.Error(handlerName+": range negotiation failed", logger.LogFields{"error": err.Error()})
		server.SendDefaultErrorResponse(w, req, http.StatusInternalServerError, sfs.log)
		return
	}

	res := sfs.streamer.Stream(w, req, target, contentType, br)
	sfs.log.Debug(handlerName+": finished streaming file", logger.LogFields{
		"path":       target.RelativePath,
		"outcome":    res.Outcome.String(),
		"bytes_sent": res.BytesSent,
		"range":      br.ContentRange(),
	})
}

func (sfs *StaticFileServer) sendResolveError(w http.ResponseWriter, req *http.Request, err error) {
	var traversal *TraversalError
	var notFound *NotFoundError
	switch {
	case errors.As(err, &traversal):
		server.SendDefaultErrorResponse(w, req, http.StatusForbidden, sfs.log)
	case errors.As(err, &notFound):
		sfs.log.Debug(handlerName+": not found", logger.LogFields{"path": req.URL.Path})
		server.SendDefaultErrorResponse(w, req, http.StatusNotFound, sfs.log)
	case errors.Is(err, fs.ErrPermission):
		sfs.log.Warn(handlerName+": permission denied", logger.LogFields{
			"path":  req.URL.Path,
			"error": err.Error(),
		})
		server.SendDefaultErrorResponse(w, req, http.StatusForbidden, sfs.log)
	default:
		sfs.log.Error(handlerName+": failed to resolve path", logger.LogFields{
			"path":  req.URL.Path,
			"error": err.Error(),
		})
		server.SendDefaultErrorResponse(w, req, http.StatusInternalServerError, sfs.log)
	}
}
