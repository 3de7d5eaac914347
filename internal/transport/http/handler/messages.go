package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/whisper-api/internal/application/account"
	"github.com/whisper-api/internal/application/message"
	"github.com/whisper-api/internal/domain"
	"github.com/whisper-api/internal/pkg/validate"
	"github.com/whisper-api/internal/transport/http/middleware"
)

// MessageHandler handles anonymous intake and the owner's inbox endpoints.
type MessageHandler struct {
	svc        message.Service
	accountSvc account.Service
}

func NewMessageHandler(svc message.Service, accountSvc account.Service) *MessageHandler {
	return &MessageHandler{svc: svc, accountSvc: accountSvc}
}

// Send is the public, unauthenticated intake endpoint.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.Send(r.Context(), chi.URLParam(r, "username"), req.Content); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "message sent successfully"})
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	msgs, err := h.svc.List(r.Context(), claims.AccountID)
	if err != nil {
		httpError(w, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesEnvelope{Success: true, Messages: msgs})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Delete(r.Context(), claims.AccountID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Message: "message deleted successfully"})
}

func (h *MessageHandler) GetAccepting(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	a, err := h.accountSvc.Get(r.Context(), claims.AccountID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AcceptMessagesEnvelope{
		Success:             true,
		IsAcceptingMessages: a.IsAcceptingMessages,
	})
}

func (h *MessageHandler) SetAccepting(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.AcceptMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.SetAccepting(r.Context(), claims.AccountID, *req.AcceptMessages); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AcceptMessagesEnvelope{
		Success:             true,
		Message:             "accept-messages status updated",
		IsAcceptingMessages: *req.AcceptMessages,
	})
}
