package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/httpx"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/catalog"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/model"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/storage"
)

// Store is implemented by *storage.Repository.
type Store interface {
	GetOrCreateProfile(ctx context.Context) (model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) error

	ListServices(ctx context.Context) ([]model.Service, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	CreateService(ctx context.Context, s *model.Service) error
	UpdateService(ctx context.Context, s model.Service) error
	DeleteService(ctx context.Context, id string) error

	ListClients(ctx context.Context) ([]model.Client, error)
	CreateClient(ctx context.Context, c *model.Client) error
	UpdateClient(ctx context.Context, c model.Client) error
	DeleteClient(ctx context.Context, id string) error

	ListHours(ctx context.Context) ([]model.OperatingHours, error)
	UpsertHours(ctx context.Context, days []model.OperatingHours) error

	ListBlocks(ctx context.Context) ([]model.AgendaBlock, error)
	CreateBlock(ctx context.Context, b *model.AgendaBlock) error
	DeleteBlock(ctx context.Context, id string) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/studio/profile", h.Profile)
	mux.HandleFunc("/api/v1/studio/services", h.Services)
	mux.HandleFunc("/api/v1/studio/clients", h.Clients)
	mux.HandleFunc("/api/v1/studio/hours", h.Hours)
	mux.HandleFunc("/api/v1/studio/blocks", h.Blocks)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// idParam reads ?id= and rejects values that cannot be a row id.
func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return "", false
	}
	return id, true
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, err := h.store.GetOrCreateProfile(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var p model.Profile
		if err := httpx.DecodeJSON(r, &p); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		p.Email = strings.TrimSpace(p.Email)
		p.Whatsapp = strings.TrimSpace(p.Whatsapp)
		p.Name = strings.TrimSpace(p.Name)
		if err := h.store.UpdateProfile(r.Context(), p); err != nil {
			h.fail(w, r, err)
			return
		}
		updated, err := h.store.GetOrCreateProfile(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, updated)
	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

type serviceRequest struct {
	Name            string       `json:"name"`
	Price           money.Amount `json:"price"`
	Description     string       `json:"description"`
	LongDescription string       `json:"long_description"`
	Duration        string       `json:"duration"`
	Maintenance     string       `json:"maintenance"`
	ImageURL        string       `json:"image_url"`
}

func (req serviceRequest) toModel() model.Service {
	return model.Service{
		Name:            req.Name,
		Price:           req.Price,
		Description:     req.Description,
		LongDescription: req.LongDescription,
		Duration:        req.Duration,
		Maintenance:     req.Maintenance,
		ImageURL:        req.ImageURL,
	}
}

// Services: GET lists (or returns ?id=), POST creates, PUT ?id= replaces,
// DELETE ?id= removes.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Has("id") {
			id, ok := idParam(w, r)
			if !ok {
				return
			}
			s, err := h.store.GetService(ctx, id)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, s)
			return
		}
		services, err := h.store.ListServices(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": services})

	case http.MethodPost, http.MethodPut:
		var req serviceRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		s, err := catalog.NormalizeService(req.toModel())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if r.Method == http.MethodPost {
			if err := h.store.CreateService(ctx, &s); err != nil {
				h.fail(w, r, err)
				return
			}
			httpx.WriteJSON(w, http.StatusCreated, s)
			return
		}
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		s.ID = id
		if err := h.store.UpdateService(ctx, s); err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, s)

	case http.MethodDelete:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := h.store.DeleteService(ctx, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

type clientRequest struct {
	Name     string `json:"name"`
	Whatsapp string `json:"whatsapp"`
	Notes    string `json:"notes"`
}

func (h *Handler) Clients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		clients, err := h.store.ListClients(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"clients": clients})

	case http.MethodPost, http.MethodPut:
		var req clientRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		c, err := catalog.NormalizeClient(model.Client{Name: req.Name, Whatsapp: req.Whatsapp, Notes: req.Notes})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if r.Method == http.MethodPost {
			if err := h.store.CreateClient(ctx, &c); err != nil {
				h.fail(w, r, err)
				return
			}
			httpx.WriteJSON(w, http.StatusCreated, c)
			return
		}
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		c.ID = id
		if err := h.store.UpdateClient(ctx, c); err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, c)

	case http.MethodDelete:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := h.store.DeleteClient(ctx, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

type hoursBody struct {
	Days []model.OperatingHours `json:"days"`
}

func (h *Handler) Hours(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		stored, err := h.store.ListHours(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, hoursBody{Days: catalog.FillWeek(stored)})

	case http.MethodPut:
		var body hoursBody
		if err := httpx.DecodeJSON(r, &body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if len(body.Days) == 0 {
			http.Error(w, "days required", http.StatusBadRequest)
			return
		}
		if err := catalog.ValidateHours(body.Days); err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.store.UpsertHours(r.Context(), body.Days); err != nil {
			h.fail(w, r, err)
			return
		}
		stored, err := h.store.ListHours(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, hoursBody{Days: catalog.FillWeek(stored)})

	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

type blockRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

func (h *Handler) Blocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		blocks, err := h.store.ListBlocks(ctx)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"blocks": blocks})

	case http.MethodPost:
		var req blockRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		b, err := catalog.NormalizeBlock(model.AgendaBlock{StartDate: req.StartDate, EndDate: req.EndDate, Reason: req.Reason})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.store.CreateBlock(ctx, &b); err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, b)

	case http.MethodDelete:
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		if err := h.store.DeleteBlock(ctx, id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}
