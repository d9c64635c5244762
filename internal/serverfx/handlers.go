package serverfx

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/http/handler"
	"github.com/yurykabanov/sitebackuper/pkg/notify"
)

func BackupHandler(
	logger *logrus.Logger,
	repo handler.BackupRepository,
	backups handler.BackupService,
	restores handler.RestoreService,
	scheduler handler.Scheduler,
	notifier *notify.Client,
) *handler.BackupHandler {
	return handler.NewBackupHandler(logger, repo, backups, restores, scheduler, notifier)
}

func ServiceHandler(
	logger *logrus.Logger,
	store handler.CredentialStore,
	catalog handler.ServiceCatalog,
) *handler.ServiceHandler {
	return handler.NewServiceHandler(logger, store, catalog)
}

func RegisterHandlers(router *mux.Router, backups *handler.BackupHandler, services *handler.ServiceHandler) {
	handler.RegisterBackupRoutes(router, backups)
	handler.RegisterServiceRoutes(router, services)
}
