package server

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"example.com/streamserver/internal/logger"
)

// jsonMarshalFunc allows swapping out json.Marshal for testing.
var jsonMarshalFunc = json.Marshal

// ErrorDetail represents the inner structure of a JSON error response.
type ErrorDetail struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// ErrorResponseJSON represents the full JSON error response body.
type ErrorResponseJSON struct {
	Error ErrorDetail `json:"error"`
}

// defaultHTMLMessages maps HTTP status codes to their default HTML messages.
// Error bodies carry only these generic texts, never request or filesystem detail.
var defaultHTMLMessages = map[int]struct {
	Title   string
	Heading string
	Message string
}{
	http.StatusNotFound: {
		Title:   "404 Not Found",
		Heading: "Not Found",
		Message: "The requested resource was not found on this server.",
	},
	http.StatusInternalServerError: {
		Title:   "500 Internal Server Error",
		Heading: "Internal Server Error",
		Message: "The server encountered an internal error and was unable to complete your request.",
	},
	http.StatusForbidden: {
		Title:   "403 Forbidden",
		Heading: "Forbidden",
		Message: "You do not have permission to access this resource.",
	},
	http.StatusMethodNotAllowed: {
		Title:   "405 Method Not Allowed",
		Heading: "Method Not Allowed",
		Message: "The method specified in the request is not allowed for this resource.",
	},
	http.StatusRequestedRangeNotSatisfiable: {
		Title:   "416 Range Not Satisfiable",
		Heading: "Range Not Satisfiable",
		Message: "The requested byte range cannot be served for this resource.",
	},
}

// PrefersJSON checks if the client prefers application/json based on the Accept header.
func PrefersJSON(acceptHeaderValue string) bool {
	if acceptHeaderValue == "" {
		return false // Default to HTML
	}

	type offer struct {
		mediaType string
		q         float64
		specific  bool // false for type/* and */*
		order     int
	}
	var offers []offer

	for i, part := range strings.Split(acceptHeaderValue, ",") {
		part = strings.TrimSpace(part)
		mediaType := part
		q := 1.0
		if idx := strings.Index(part, ";"); idx != -1 {
			mediaType = strings.TrimSpace(part[:idx])
			for _, param := range strings.Split(part[idx+1:], ";") {
				param = strings.TrimSpace(param)
				if !strings.HasPrefix(param, "q=") {
					continue
				}
				v, err := strconv.ParseFloat(param[2:], 64)
				if err != nil || v < 0 || v > 1 {
					v = 0
				}
				q = v
				break
			}
		}
		if q > 0 {
			offers = append(offers, offer{
				mediaType: strings.ToLower(mediaType),
				q:         q,
				specific:  !strings.HasSuffix(mediaType, "/*") && mediaType != "*/*",
				order:     i,
			})
		}
	}
	if len(offers) == 0 {
		return false
	}

	sort.Slice(offers, func(i, j int) bool {
		if offers[i].q != offers[j].q {
			return offers[i].q > offers[j].q
		}
		if offers[i].specific != offers[j].specific {
			return offers[i].specific
		}
		return offers[i].order < offers[j].order
	})
	return offers[0].mediaType == "application/json"
}

// SendDefaultErrorResponse writes a complete error response with a minimal
// body: HTML by default, JSON when the client prefers it, none for HEAD.
// Headers the caller set beforehand (Allow, Content-Range) are kept; entity
// headers describing a file are dropped.
func SendDefaultErrorResponse(w http.ResponseWriter, req *http.Request, statusCode int, log *logger.Logger) {
	statusText := http.StatusText(statusCode)
	if statusText == "" {
		statusText = "Error"
	}

	var body []byte
	contentType := "text/html; charset=utf-8"
	if req != nil && PrefersJSON(req.Header.Get("Accept")) {
		b, err := jsonMarshalFunc(ErrorResponseJSON{Error: ErrorDetail{StatusCode: statusCode, Message: statusText}})
		if err != nil {
			log.Error("Failed to marshal JSON error response, falling back to HTML.", logger.LogFields{
				"error":       err.Error(),
				"status_code": statusCode,
			})
		} else {
			body = b
			contentType = "application/json; charset=utf-8"
		}
	}
	if body == nil {
		if msg, ok := defaultHTMLMessages[statusCode]; ok {
			body = GenerateHTMLResponseBody(msg.Title, msg.Heading, msg.Message)
		} else {
			body = GenerateHTMLResponseBody(fmt.Sprintf("%d %s", statusCode, statusText), statusText,
				"The server encountered an error processing your request.")
		}
	}

	h := w.Header()
	for _, k := range []string{"Accept-Ranges", "Last-Modified", "Etag", "Content-Encoding"} {
		h.Del(k)
	}
	if statusCode != http.StatusRequestedRangeNotSatisfiable {
		h.Del("Content-Range")
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	if req != nil && req.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		log.Debug("Failed to write error response body", logger.LogFields{
			"status_code": statusCode,
			"error":       err.Error(),
		})
	}
}

// GenerateHTMLResponseBody renders the small HTML page used for error responses.
func GenerateHTMLResponseBody(title, heading, message string) []byte {
	return []byte(fmt.Sprintf(`<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>`,
		html.EscapeString(title), html.EscapeString(heading), html.EscapeString(message)))
}
