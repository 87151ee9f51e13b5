package handler

import (
	"encoding/json"
	"net/http"

	"github.com/notify-relay/internal/application/notification"
	"github.com/notify-relay/internal/application/push"
	"github.com/notify-relay/internal/domain"
	"github.com/notify-relay/internal/pkg/validate"
	"github.com/notify-relay/internal/transport/http/middleware"
)

// PushHandler handles push subscription endpoints.
type PushHandler struct {
	svc    push.Service
	notifs notification.Service
}

func NewPushHandler(svc push.Service, notifs notification.Service) *PushHandler {
	return &PushHandler{svc: svc, notifs: notifs}
}

func (h *PushHandler) PublicKey(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PublicKeyEnvelope{PublicKey: h.svc.PublicKey()})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sub, err := h.svc.Subscribe(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), claims.UserID, req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "unsubscribed"})
}

func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	subs, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// Test creates a notification for the caller so the whole delivery path can
// be checked from a browser.
func (h *PushHandler) Test(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	req := domain.CreateNotificationRequest{Title: "Test notification", Message: "Push delivery is working."}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	n, report, err := h.notifs.Create(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DispatchEnvelope{Notification: n, Push: report})
}
