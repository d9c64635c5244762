package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/schedule"
)

const (
	BackupJobId  = "backup"
	RestoreJobId = "restore"

	requestTimeout = 10 * time.Second
)

type BackupRepository interface {
	Get(context.Context, domain.BackupFilter) ([]domain.Backup, error)
	FindById(context.Context, int64) (domain.Backup, error)
	LatestCompleted(context.Context) (domain.Backup, error)
}

type BackupService interface {
	Admit(ctx context.Context, serviceName string) (domain.ServiceInfo, error)
	CreateBackup(context.Context, domain.CreateBackupRequest) (domain.Backup, error)
	DeleteBackup(ctx context.Context, id int64) error
}

type RestoreService interface {
	RestoreBackup(ctx context.Context, id int64) (domain.Backup, error)
	Running(ctx context.Context) (bool, error)
}

type Scheduler interface {
	ScheduleOnce(id string, job schedule.Job) bool
}

type Notifier interface {
	Callback(cloudId string) func(ctx context.Context, backupUrl string)
}

type BackupHandler struct {
	logger logrus.FieldLogger

	repo      BackupRepository
	backups   BackupService
	restores  RestoreService
	scheduler Scheduler
	notifier  Notifier
}

func NewBackupHandler(
	logger logrus.FieldLogger,
	repo BackupRepository,
	backups BackupService,
	restores RestoreService,
	scheduler Scheduler,
	notifier Notifier,
) *BackupHandler {
	return &BackupHandler{
		logger:    logger,
		repo:      repo,
		backups:   backups,
		restores:  restores,
		scheduler: scheduler,
		notifier:  notifier,
	}
}

type backupResponse struct {
	Id            int64              `json:"id"`
	CreatorUserId int64              `json:"creator_user_id"`
	ServiceType   domain.ServiceType `json:"service_type"`
	BackupUrl     *string            `json:"backup_url"`
	BackupPath    *string            `json:"backup_path"`
	Status        domain.Status      `json:"status"`
	StatusLabel   string             `json:"status_label"`
	Message       *string            `json:"message"`
	CreatedAt     time.Time          `json:"created_at"`
	ModifiedAt    time.Time          `json:"modified_at"`
}

func newBackupResponse(b domain.Backup) backupResponse {
	return backupResponse{
		Id:            b.Id,
		CreatorUserId: b.CreatorUserId,
		ServiceType:   b.ServiceType,
		BackupUrl:     b.BackupUrl,
		BackupPath:    b.BackupPath,
		Status:        b.Status,
		StatusLabel:   b.Status.Label(),
		Message:       b.Message,
		CreatedAt:     b.CreatedAt,
		ModifiedAt:    b.ModifiedAt,
	}
}

// List serves GET /api/backups?id=&status=&service_type=&order_by=&order=
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	bb, err := h.repo.Get(ctx, filter)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	result := make([]backupResponse, 0, len(bb))
	for _, b := range bb {
		result = append(result, newBackupResponse(b))
	}

	writeJSON(w, logger, http.StatusOK, result)
}

func parseFilter(r *http.Request) (domain.BackupFilter, error) {
	q := r.URL.Query()

	filter := domain.BackupFilter{
		OrderBy: q.Get("order_by"),
		Order:   q.Get("order"),
	}

	if v := q.Get("id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, badRequest("invalid id")
		}
		filter.Id = id
	}

	if v := q.Get("status"); v != "" {
		n, err := strconv.Atoi(v)
		status := domain.Status(n)
		if err != nil || !status.IsValid() {
			return filter, badRequest("invalid status")
		}
		filter.Status = &status
	}

	if v := q.Get("service_type"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, badRequest("invalid service type")
		}
		filter.ServiceType = domain.ServiceType(n)
	}

	switch filter.Order {
	case "", "asc", "desc", "ASC", "DESC":
	default:
		return filter, badRequest("invalid order")
	}

	return filter, nil
}

// Latest serves GET /api/backups/latest
func (h *BackupHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	b, err := h.repo.LatestCompleted(ctx)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	resp := ok("Latest backup")
	resp.Url = b.URL()

	writeJSON(w, logger, http.StatusOK, resp)
}

type createBackupRequest struct {
	Service string `json:"service"`
	UserId  int64  `json:"user_id"`
	CloudId string `json:"cloud_id"`
}

// Create serves POST /api/backups. The backup itself runs on the scheduler.
func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	var req createBackupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, logger, err)
		return
	}

	if req.Service == "" {
		writeError(w, logger, badRequest("service is required"))
		return
	}

	info, err := h.backups.Admit(ctx, req.Service)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	createReq := domain.CreateBackupRequest{
		ServiceName: info.Name,
		UserId:      req.UserId,
		OnComplete:  h.notifier.Callback(req.CloudId),
	}

	requestId := appcontext.RequestId(ctx)

	scheduled := h.scheduler.ScheduleOnce(BackupJobId, func(ctx context.Context) {
		ctx = appcontext.WithRequestId(ctx, requestId)

		if _, err := h.backups.CreateBackup(ctx, createReq); err != nil {
			appcontext.LoggerFromContext(h.logger, ctx).WithError(err).Warn("Backup was not started")
		}
	})
	if !scheduled {
		writeJSON(w, logger, http.StatusConflict, no("Backup is already scheduled"))
		return
	}

	writeJSON(w, logger, http.StatusAccepted, ok("Backup scheduled"))
}

// Restore serves POST /api/backups/{id}/restore. The restore runs on the scheduler.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	id, err := pathId(r)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	b, err := h.repo.FindById(ctx, id)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	if b.URL() == "" {
		writeError(w, logger, errors.Wrapf(domain.ErrBackupNotRestorable, "id %d", id))
		return
	}

	running, err := h.restores.Running(ctx)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	if running {
		writeError(w, logger, domain.ErrRestoreRunning)
		return
	}

	requestId := appcontext.RequestId(ctx)

	scheduled := h.scheduler.ScheduleOnce(RestoreJobId, func(ctx context.Context) {
		ctx = appcontext.WithRequestId(ctx, requestId)

		if _, err := h.restores.RestoreBackup(ctx, id); err != nil {
			appcontext.LoggerFromContext(h.logger, ctx).WithError(err).Warn("Restore was not started")
		}
	})
	if !scheduled {
		writeJSON(w, logger, http.StatusConflict, no("Restore is already scheduled"))
		return
	}

	writeJSON(w, logger, http.StatusAccepted, ok("Restore scheduled"))
}

// Delete serves DELETE /api/backups/{id}
func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	id, err := pathId(r)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	if err := h.backups.DeleteBackup(ctx, id); err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, logger, http.StatusOK, ok("Backup deleted"))
}

type restoreStatusResponse struct {
	response
	Running bool `json:"running"`
}

// RestoreStatus serves GET /api/restore/status
func (h *BackupHandler) RestoreStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	running, err := h.restores.Running(ctx)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	resp := restoreStatusResponse{response: ok("No restore is running"), Running: running}
	if running {
		resp.Msg = "Restore is running"
	}

	writeJSON(w, logger, http.StatusOK, resp)
}
