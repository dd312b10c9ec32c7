package staticfileserver

import (
	"mime"
	"path/filepath"
	"strings"
)

// fallbackMimeTypes covers media and subtitle formats that the platform MIME
// registry frequently lacks or misreports. It is consulted only after
// mime.TypeByExtension comes up empty.
var fallbackMimeTypes = map[string]string{
	".mkv":  "video/x-matroska",
	".mk3d": "video/x-matroska-3d",
	".mka":  "audio/x-matroska",
	".avi":  "video/x-msvideo",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ts":   "video/mp2t",
	".m2ts": "video/mp2t",
	".mts":  "video/mp2t",
	".webm": "video/webm",
	".ogv":  "video/ogg",
	".flv":  "video/x-flv",
	".wmv":  "video/x-ms-wmv",
	".3gp":  "video/3gpp",
	".3g2":  "video/3gpp2",
	".m3u8": "application/vnd.apple.mpegurl",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".oga":  "audio/ogg",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
	".weba": "audio/webm",
	".srt":  "application/x-subrip",
	".vtt":  "text/vtt; charset=utf-8",
	".ass":  "text/x-ssa",
	".ssa":  "text/x-ssa",
}

const defaultOctetStreamMimeType = "application/octet-stream"

// MimeTypeResolver encapsulates the logic for determining MIME types.
type MimeTypeResolver struct {
	customMimeTypes map[string]string // from files.mime_types
}

// NewMimeTypeResolver creates a MimeTypeResolver. custom maps extensions
// (with leading dot, any case) to MIME types and takes precedence over every
// other source.
func NewMimeTypeResolver(custom map[string]string) *MimeTypeResolver {
	resolver := &MimeTypeResolver{customMimeTypes: make(map[string]string, len(custom))}
	for ext, mimeType := range custom {
		resolver.customMimeTypes[strings.ToLower(ext)] = mimeType
	}
	return resolver
}

// GetMimeType determines the MIME type for a given file path. It never fails:
// 1. Check custom mappings.
// 2. Use Go's mime.TypeByExtension.
// 3. Check fallbackMimeTypes.
// 4. Default to application/octet-stream.
func (r *MimeTypeResolver) GetMimeType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return defaultOctetStreamMimeType
	}

	if r != nil {
		if mimeType, ok := r.customMimeTypes[ext]; ok {
			return mimeType
		}
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	if mimeType, ok := fallbackMimeTypes[ext]; ok {
		return mimeType
	}
	return defaultOctetStreamMimeType
}
