package xhttp

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

const (
	StatusOK                  = fasthttp.StatusOK
	StatusBadRequest          = fasthttp.StatusBadRequest
	StatusUnauthorized        = fasthttp.StatusUnauthorized
	StatusNotFound            = fasthttp.StatusNotFound
	StatusMethodNotAllowed    = fasthttp.StatusMethodNotAllowed
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusInternalServerError = fasthttp.StatusInternalServerError
	StatusServiceUnavailable  = fasthttp.StatusServiceUnavailable
)

const contentTypeJSON = "application/json; charset=utf-8"

func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}

// WriteJSON replaces the response with v encoded as JSON. A value that
// cannot be encoded becomes a 500 with an error body.
func WriteJSON(ctx *RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = StatusInternalServerError
		b = []byte(`{"error":"response encoding failed"}`)
	}
	ctx.Response.Header.SetContentType(contentTypeJSON)
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

// WriteError writes {"error": msg}.
func WriteError(ctx *RequestCtx, status int, msg string) {
	WriteJSON(ctx, status, map[string]string{"error": msg})
}
