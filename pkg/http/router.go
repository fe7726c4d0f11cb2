package xhttp

import (
	"strings"

	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

// CreateDefaultRouter returns a router that answers unknown paths and
// methods with JSON errors and never redirects.
func CreateDefaultRouter() *Router {
	r := router.New()
	r.RedirectFixedPath = false
	r.RedirectTrailingSlash = false
	r.SaveMatchedRoutePath = true
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	r.NotFound = func(ctx *RequestCtx) {
		WriteError(ctx, StatusNotFound, strings.ToLower(StatusText(StatusNotFound)))
	}
	r.MethodNotAllowed = func(ctx *RequestCtx) {
		WriteError(ctx, StatusMethodNotAllowed, strings.ToLower(StatusText(StatusMethodNotAllowed)))
	}
	return r
}
