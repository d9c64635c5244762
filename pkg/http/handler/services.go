package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

type CredentialStore interface {
	Save(ctx context.Context, userId int64, serviceName string, creds domain.Credentials) (domain.ServiceConfig, error)
	Edit(ctx context.Context, id int64, creds domain.Credentials) (domain.ServiceConfig, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (domain.ServiceConfig, domain.Credentials, error)
	List(ctx context.Context) ([]domain.ServiceConfig, error)
	AvailableServiceTypes(ctx context.Context) ([]domain.ServiceInfo, error)
}

type ServiceCatalog interface {
	Info(domain.ServiceType) (domain.ServiceInfo, bool)
}

type ServiceHandler struct {
	logger logrus.FieldLogger

	store   CredentialStore
	catalog ServiceCatalog
}

func NewServiceHandler(logger logrus.FieldLogger, store CredentialStore, catalog ServiceCatalog) *ServiceHandler {
	return &ServiceHandler{
		logger:  logger,
		store:   store,
		catalog: catalog,
	}
}

type serviceResponse struct {
	Id            int64              `json:"id"`
	CreatorUserId int64              `json:"creator_user_id"`
	ServiceName   string             `json:"service_name"`
	ServiceType   domain.ServiceType `json:"service_type"`
	Credentials   domain.Credentials `json:"credentials,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ModifiedAt    time.Time          `json:"modified_at"`
}

func newServiceResponse(cfg domain.ServiceConfig) serviceResponse {
	return serviceResponse{
		Id:            cfg.Id,
		CreatorUserId: cfg.CreatorUserId,
		ServiceName:   cfg.ServiceName,
		ServiceType:   cfg.ServiceType,
		CreatedAt:     cfg.CreatedAt,
		ModifiedAt:    cfg.ModifiedAt,
	}
}

// List serves GET /api/services
func (h *ServiceHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	configs, err := h.store.List(ctx)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	result := make([]serviceResponse, 0, len(configs))
	for _, cfg := range configs {
		result = append(result, newServiceResponse(cfg))
	}

	writeJSON(w, logger, http.StatusOK, result)
}

// Get serves GET /api/services/{id}. Secret values are masked.
func (h *ServiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	id, err := pathId(r)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	cfg, creds, err := h.store.Get(ctx, id)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	resp := newServiceResponse(cfg)
	resp.Credentials = h.mask(cfg.ServiceType, creds)

	writeJSON(w, logger, http.StatusOK, resp)
}

func (h *ServiceHandler) mask(t domain.ServiceType, creds domain.Credentials) domain.Credentials {
	info, _ := h.catalog.Info(t)

	secret := make(map[string]bool, len(info.Fields))
	for _, f := range info.Fields {
		secret[f.Key] = f.Secret
	}

	result := make(domain.Credentials, len(creds))
	for k, v := range creds {
		if secret[k] && v != "" {
			v = domain.MaskedSecret
		}
		result[k] = v
	}

	return result
}

// Types serves GET /api/services/types, the remote services which can still be configured.
func (h *ServiceHandler) Types(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	types, err := h.store.AvailableServiceTypes(ctx)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	if types == nil {
		types = []domain.ServiceInfo{}
	}

	writeJSON(w, logger, http.StatusOK, types)
}

type saveServiceRequest struct {
	Service     string             `json:"service"`
	UserId      int64              `json:"user_id"`
	Credentials domain.Credentials `json:"credentials"`
}

// Create serves POST /api/services
func (h *ServiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	var req saveServiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, logger, err)
		return
	}

	if _, err := h.store.Save(ctx, req.UserId, req.Service, req.Credentials); err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusCreated, ok("Service saved"))
}

type editServiceRequest struct {
	Credentials domain.Credentials `json:"credentials"`
}

// Edit serves PUT /api/services/{id}
func (h *ServiceHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	id, err := pathId(r)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	var req editServiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, logger, err)
		return
	}

	if _, err := h.store.Edit(ctx, id, req.Credentials); err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, ok("Service updated"))
}

// Delete serves DELETE /api/services/{id}
func (h *ServiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	id, err := pathId(r)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	if err := h.store.Delete(ctx, id); err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, ok("Service deleted"))
}
