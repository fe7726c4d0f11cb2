package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/studio-gateway/internal/services"
	"github.com/nimasrn/studio-gateway/internal/wise"
	xhttp "github.com/nimasrn/studio-gateway/pkg/http"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/prom"
)

type SignatureVerifier interface {
	Verify(body []byte, signature string) bool
}

type Reconciler interface {
	Process(ctx context.Context, transferID, providerStatus string) (*services.ReconcileResult, error)
}

type WebhookHandler struct {
	verifier   SignatureVerifier
	reconciler Reconciler
	header     string
	now        func() time.Time
}

func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhooks/wise", h.HandleWise)
	e.GET("/webhooks/wise", h.WiseStatus)
}

func NewWebhookHandler(verifier SignatureVerifier, reconciler Reconciler, signatureHeader string) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		header:     signatureHeader,
		now:        time.Now,
	}
}

type receivedResponse struct {
	Received bool `json:"received"`
}

// HandleWise acknowledges a Wise transfer webhook. Anything but a 2xx makes
// Wise redeliver, so only bad signatures and failures worth a retry are
// answered with an error.
func (h *WebhookHandler) HandleWise(ctx *xhttp.RequestCtx) {
	body := ctx.PostBody()
	signature := string(ctx.Request.Header.Peek(h.header))

	if !h.verifier.Verify(body, signature) {
		logger.Warn("rejected wise webhook with invalid signature", "remote_ip", ctx.RemoteIP().String())
		prom.IncWebhookEvent("unknown", "unauthorized")
		xhttp.WriteError(ctx, xhttp.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := wise.ParseEvent(body)
	if err != nil {
		logger.Error("failed to parse wise webhook", "error", err)
		prom.IncWebhookEvent("unknown", "invalid")
		xhttp.WriteError(ctx, xhttp.StatusInternalServerError, "invalid payload")
		return
	}

	if !ev.Handled() {
		logger.Info("ignoring wise webhook", "event_type", ev.Type)
		prom.IncWebhookEvent(ev.Type, "ignored")
		xhttp.WriteJSON(ctx, xhttp.StatusOK, receivedResponse{Received: true})
		return
	}

	log := logger.With("event_type", ev.Type, "transfer_id", ev.TransferID)
	log.Info("received wise webhook", "current_state", ev.State(), "previous_state", ev.PreviousState)

	res, err := h.reconciler.Process(ctx, ev.TransferID, ev.State())
	if err != nil {
		log.Error("failed to reconcile wise transfer", "error", err)
		prom.IncWebhookEvent(ev.Type, "error")
		xhttp.WriteError(ctx, xhttp.StatusInternalServerError, "processing failed")
		return
	}

	result := "processed"
	if !res.Matched {
		result = "unmatched"
	}
	prom.IncWebhookEvent(ev.Type, result)
	xhttp.WriteJSON(ctx, xhttp.StatusOK, receivedResponse{Received: true})
}

type statusResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (h *WebhookHandler) WiseStatus(ctx *xhttp.RequestCtx) {
	xhttp.WriteJSON(ctx, xhttp.StatusOK, statusResponse{
		Message:   "Wise webhook endpoint is active",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}
