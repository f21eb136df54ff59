package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/nexus-crm/internal/model"
	"github.com/mmeshcher/nexus-crm/internal/service"
)

type aiRequest struct {
	Action string       `json:"action"`
	Client model.Client `json:"client"`
}

type aiMessageResponse struct {
	Text string `json:"text"`
}

// AI проксирует данные клиента во внешний сервис анализа.
// Контракт: POST {action: "analyze" | "message", client: {...}};
// не-POST методы получают 405, отсутствие учётного ключа — 500.
func (h *Handler) AI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req aiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	switch req.Action {
	case "analyze":
		analysis, err := h.service.AnalyzeClient(r.Context(), req.Client)
		if err != nil {
			h.aiError(w, err, req.Action)
			return
		}
		h.writeJSON(w, http.StatusOK, analysis)

	case "message":
		text, err := h.service.DraftClientMessage(r.Context(), req.Client)
		if err != nil {
			h.aiError(w, err, req.Action)
			return
		}
		h.writeJSON(w, http.StatusOK, aiMessageResponse{Text: text})

	default:
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown action"})
	}
}

func (h *Handler) aiError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, service.ErrInsightUnavailable) {
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "configuration error: AI credential is not set"})
		return
	}

	h.logger.Error("ai proxy error", zap.Error(err), zap.String("action", action))
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "AI service communication failed, try again"})
}
