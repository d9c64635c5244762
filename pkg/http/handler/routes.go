package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

func RegisterBackupRoutes(router *mux.Router, h *BackupHandler) {
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/backups", h.List).Methods(http.MethodGet)
	api.HandleFunc("/backups", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/backups/latest", h.Latest).Methods(http.MethodGet)
	api.HandleFunc("/backups/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/backups/{id:[0-9]+}/restore", h.Restore).Methods(http.MethodPost)
	api.HandleFunc("/restore/status", h.RestoreStatus).Methods(http.MethodGet)
}

func RegisterServiceRoutes(router *mux.Router, h *ServiceHandler) {
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/services", h.List).Methods(http.MethodGet)
	api.HandleFunc("/services", h.Create).Methods(http.MethodPost)
	api.HandleFunc("/services/types", h.Types).Methods(http.MethodGet)
	api.HandleFunc("/services/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/services/{id:[0-9]+}", h.Edit).Methods(http.MethodPut)
	api.HandleFunc("/services/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
}
