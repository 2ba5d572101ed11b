package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/logger"
	"github.com/fjod/agrostore/internal/payment"
	"go.uber.org/zap"
)

const signatureHeader = "Stripe-Signature"

type EventParser interface {
	Parse(payload []byte, signatureHeader string) (*payment.Event, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, ev *payment.Event) error
}

type WebhookHandler struct {
	parser  EventParser
	events  EventHandler
	maxBody int64
	timeout time.Duration
	log     *zap.Logger
}

func NewWebhookHandler(parser EventParser, events EventHandler, maxBody int64, timeout time.Duration, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:  parser,
		events:  events,
		maxBody: maxBody,
		timeout: timeout,
		log:     log,
	}
}

type WebhookResponseDTO struct {
	Received bool `json:"received"`
}

// POST /api/v1/payments/webhook
//
// 400 for anything unsigned or unreadable, 500 when applying the event failed
// and a redelivery may succeed, 200 otherwise.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.log)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	ev, err := h.parser.Parse(payload, r.Header.Get(signatureHeader))
	if err != nil {
		log.Warn("rejected payment webhook", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type), zap.String("order_id", ev.OrderID))

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.events.HandleEvent(ctx, ev); err != nil {
		if permanent(err) {
			// redelivering the same event cannot change the outcome
			log.Error("payment event not applied", zap.Error(err))
			respondJSON(w, http.StatusOK, WebhookResponseDTO{Received: true})
			return
		}
		log.Error("payment event failed, awaiting redelivery", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "event processing failed")
		return
	}

	log.Info("payment event handled", zap.Stringer("kind", ev.Kind))
	respondJSON(w, http.StatusOK, WebhookResponseDTO{Received: true})
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrIllegalTransition)
}
