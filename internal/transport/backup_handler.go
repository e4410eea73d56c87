package transport

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"stockledger/internal/backup"
	"stockledger/internal/domain"
	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MaxRestoreBytes bounds a compressed restore upload
const MaxRestoreBytes = 64 << 20

// RestoreResponse reports a finished restore
type RestoreResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Count   int    `json:"count"`
}

// BackupHandler dumps and restores whole collections. It is guarded by an API
// key rather than a user session.
type BackupHandler struct {
	backups service.BackupService
	logger  *zap.Logger
}

// NewBackupHandler creates a new BackupHandler
func NewBackupHandler(backups service.BackupService, logger *zap.Logger) *BackupHandler {
	return &BackupHandler{backups: backups, logger: logger}
}

// RegisterRoutes registers backup routes behind apiKey
func (h *BackupHandler) RegisterRoutes(r chi.Router, apiKey func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(apiKey)
		r.Get("/backup", h.Backup)
		r.With(middleware.RequireContentType(h.logger, "application/gzip", "application/x-gzip")).Post("/restore", h.Restore)
	})
}

func (h *BackupHandler) kindParam(w http.ResponseWriter, r *http.Request) (backup.Kind, bool) {
	kind, err := backup.ParseKind(r.URL.Query().Get("type"))
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, domain.Invalid("type", err.Error()))
		return "", false
	}
	return kind, true
}

// Backup writes one page of a collection as a gzip JSON attachment
func (h *BackupHandler) Backup(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}

	// Buffer the page so the count headers precede the body.
	var buf bytes.Buffer
	info, err := h.backups.Dump(r.Context(), kind, page, &buf)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-page-%d.json.gz"`, kind, info.Page))
	w.Header().Set("X-Total-Count", strconv.Itoa(info.Total))
	w.Header().Set("X-Total-Pages", strconv.Itoa(info.TotalPages))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("Backup download interrupted", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Restore loads a gzip JSON array. ?keepIds=true preserves identifiers.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}
	keepIDs, _ := strconv.ParseBool(r.URL.Query().Get("keepIds"))

	body := http.MaxBytesReader(w, r.Body, MaxRestoreBytes)
	count, err := h.backups.Restore(r.Context(), kind, body, backup.RestoreOptions{KeepIDs: keepIDs})
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, RestoreResponse{
		Success: true,
		Message: fmt.Sprintf("restored %d %s records", count, kind),
		Type:    string(kind),
		Count:   count,
	})
}
