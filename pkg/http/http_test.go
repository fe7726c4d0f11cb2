package xhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newCtx(method, path string) *RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func serve(h RequestHandler, method, path string) *RequestCtx {
	ctx := newCtx(method, path)
	h(ctx)
	return ctx
}

func TestDefaultRouter_JSONErrors(t *testing.T) {
	r := CreateDefaultRouter()
	r.POST("/api/webhooks/wise", func(ctx *RequestCtx) { WriteJSON(ctx, StatusOK, map[string]bool{"received": true}) })

	t.Run("unknown path", func(t *testing.T) {
		ctx := serve(r.Handler, fasthttp.MethodGet, "/nope")
		assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"error":"not found"}`, string(ctx.Response.Body()))
	})

	t.Run("wrong method", func(t *testing.T) {
		ctx := serve(r.Handler, fasthttp.MethodPut, "/api/webhooks/wise")
		assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"error":"method not allowed"}`, string(ctx.Response.Body()))
	})

	t.Run("trailing slash is not redirected", func(t *testing.T) {
		ctx := serve(r.Handler, fasthttp.MethodPost, "/api/webhooks/wise/")
		assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	})
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	ctx := newCtx(fasthttp.MethodGet, "/")
	WriteJSON(ctx, StatusOK, map[string]any{"ch": make(chan int)})
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
	assert.Equal(t, contentTypeJSON, string(ctx.Response.Header.ContentType()))
}

func TestEngine_MiddlewareOrder(t *testing.T) {
	e := CreateServer()
	var order []string
	tag := func(name string) MiddlewareFunc {
		return func(next RequestHandler) RequestHandler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	e.Use(tag("first"))
	e.Use(tag("second"))
	e.GET("/ping", func(ctx *RequestCtx) { order = append(order, "handler") })

	serve(e.Handler(), fasthttp.MethodGet, "/ping")
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(func(ctx *RequestCtx) {
		seen, _ = ctx.UserValue("request_id").(string)
	})

	t.Run("generated", func(t *testing.T) {
		ctx := serve(h, fasthttp.MethodPost, "/")
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, string(ctx.Response.Header.Peek(HeaderRequestID)))
	})

	t.Run("propagated", func(t *testing.T) {
		ctx := newCtx(fasthttp.MethodPost, "/")
		ctx.Request.Header.Set(HeaderRequestID, "wise-delivery-1")
		h(ctx)
		assert.Equal(t, "wise-delivery-1", seen)
		assert.Equal(t, "wise-delivery-1", string(ctx.Response.Header.Peek(HeaderRequestID)))
	})
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) { panic("boom") })

	var ctx *RequestCtx
	require.NotPanics(t, func() { ctx = serve(h, fasthttp.MethodPost, "/api/webhooks/wise") })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"internal error"}`, string(ctx.Response.Body()))
}

func TestRequestCtx_DoneIsUsable(t *testing.T) {
	ctx := newCtx(fasthttp.MethodPost, "/api/webhooks/wise")
	select {
	case <-ctx.Done():
		t.Fatal("request context is done before the server shuts down")
	default:
	}
	assert.NoError(t, ctx.Err())
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, shouldSkip("/health"))
	assert.True(t, shouldSkip("/metrics"))
	assert.False(t, shouldSkip("/api/webhooks/wise"))
}
