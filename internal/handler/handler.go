// Package handler содержит HTTP-обработчики API CRM-сервиса Nexus.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/nexus-crm/internal/model"
	"github.com/mmeshcher/nexus-crm/internal/service"
	"github.com/mmeshcher/nexus-crm/internal/validation"
	"github.com/mmeshcher/nexus-crm/internal/webhook"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ListClients() []model.Client
	GetClient(id string) (model.Client, error)
	UpsertClient(ctx context.Context, form model.ClientForm, existingID string) (model.Client, error)
	DeleteClient(ctx context.Context, id string)
	ListCategories() []model.Category
	AddCategory(ctx context.Context, name, color string) model.Category
	RemoveCategory(ctx context.Context, id string)
	WebhookURL() string
	SetWebhookURL(url string)
	NotifyClient(ctx context.Context, id string) error
	AnalyzeClient(ctx context.Context, client model.Client) (*model.AIAnalysis, error)
	DraftClientMessage(ctx context.Context, client model.Client) (string, error)
}

// Handler реализует HTTP-обработчики API CRM-сервиса Nexus.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

type validationErrorsResponse struct {
	Errors map[string]string `json:"errors"`
}

// ListClients возвращает список всех клиентов.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients := h.service.ListClients()
	if clients == nil {
		clients = []model.Client{}
	}
	h.writeJSON(w, http.StatusOK, clients)
}

// CreateClient создаёт нового клиента по данным формы.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var form model.ClientForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if errs := validation.ValidateClientForm(form); len(errs) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, validationErrorsResponse{Errors: errs})
		return
	}

	client, err := h.service.UpsertClient(r.Context(), form, "")
	if err != nil {
		h.logger.Error("create client error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, client)
}

// UpdateClient частично обновляет существующего клиента.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var form model.ClientForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if errs := validation.ValidateClientPatch(form); len(errs) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, validationErrorsResponse{Errors: errs})
		return
	}

	client, err := h.service.UpsertClient(r.Context(), form, id)
	if err != nil {
		if errors.Is(err, service.ErrClientNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update client error", zap.Error(err), zap.String("clientID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, client)
}

// DeleteClient удаляет клиента. Отсутствие записи не является ошибкой.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	h.service.DeleteClient(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

// NotifyClient отправляет ручное уведомление по клиенту на настроенный URL.
func (h *Handler) NotifyClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.service.NotifyClient(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrClientNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}

		var deliveryErr *webhook.DeliveryError
		if errors.As(err, &deliveryErr) {
			// Ручной режим: ошибка доставки показывается пользователю.
			h.writeJSON(w, http.StatusBadGateway, errorResponse{Error: deliveryErr.Error()})
			return
		}

		h.logger.Error("notify client error", zap.Error(err), zap.String("clientID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCategories возвращает список категорий.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.service.ListCategories()
	if categories == nil {
		categories = []model.Category{}
	}
	h.writeJSON(w, http.StatusOK, categories)
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateCategory создаёт новую категорию.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if errs := validation.ValidateCategory(req.Name, req.Color); len(errs) > 0 {
		h.writeJSON(w, http.StatusUnprocessableEntity, validationErrorsResponse{Errors: errs})
		return
	}

	category := h.service.AddCategory(r.Context(), req.Name, req.Color)
	h.writeJSON(w, http.StatusCreated, category)
}

// DeleteCategory удаляет категорию. Клиенты с её идентификатором остаются.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	h.service.RemoveCategory(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

type webhookSettingsRequest struct {
	URL string `json:"url"`
}

// GetWebhookSettings возвращает текущий URL уведомлений.
func (h *Handler) GetWebhookSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, webhookSettingsRequest{URL: h.service.WebhookURL()})
}

// SetWebhookSettings сохраняет URL уведомлений.
func (h *Handler) SetWebhookSettings(w http.ResponseWriter, r *http.Request) {
	var req webhookSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.service.SetWebhookURL(req.URL)
	w.WriteHeader(http.StatusNoContent)
}
