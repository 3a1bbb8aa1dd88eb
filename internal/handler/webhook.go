package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/relaymesh/whatsapp-inbox/internal/ingest"
	"github.com/relaymesh/whatsapp-inbox/internal/middleware"
	"github.com/relaymesh/whatsapp-inbox/pkg/model"
	"github.com/relaymesh/whatsapp-inbox/pkg/logger"
)

// WebhookHandler handles provider webhook delivery and the seed endpoint.
type WebhookHandler struct {
	ingestor    *ingest.Ingestor
	verifyToken string
	seed        []model.RawPayload
	logger      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler. verifyToken may be
// empty, which disables the GET verification handshake.
func NewWebhookHandler(in *ingest.Ingestor, verifyToken string, seed []model.RawPayload, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor:    in,
		verifyToken: verifyToken,
		seed:        seed,
		logger:      log,
	}
}

// Receive handles POST /api/webhook
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload model.RawPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload body")
		return
	}
	if err := middleware.ValidatePayloadID(payload.ID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ingestor.Ingest(r.Context(), &payload); err != nil {
		h.logger.Error("failed to process webhook",
			zap.String("payload_id", payload.ID), zap.Error(err))
		http.Error(w, "Error processing WhatsApp webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("WhatsApp webhook processed successfully"))
}

// Verify handles GET /api/webhook, the provider's subscription handshake:
// echo hub.challenge when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if h.verifyToken == "" {
		writeError(w, http.StatusForbidden, "webhook verification not configured")
		return
	}
	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// InitializeDatabase handles POST /api/initialize-database
func (h *WebhookHandler) InitializeDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.ingestor.Seed(r.Context(), h.seed); err != nil {
		h.logger.Error("failed to initialize database", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to initialize database")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "WhatsApp database initialized successfully.",
	})
}
