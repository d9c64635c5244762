package transferfx

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/sitebackuper/internal/configfx"
	"github.com/yurykabanov/sitebackuper/pkg/credentials"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/http/handler"
	"github.com/yurykabanov/sitebackuper/pkg/transfer"
	"github.com/yurykabanov/sitebackuper/pkg/workdir"
)

const ConfigCredentialsSecret = "credentials.secret"

func Workdir(config *configfx.SiteConfig) (*workdir.Manager, domain.Workdir, error) {
	wd := workdir.New(config.BackupDirectory, config.BackupUrl)

	if err := wd.Ensure(); err != nil {
		return nil, nil, err
	}

	return wd, wd, nil
}

func Catalog(logger *logrus.Logger, wd *workdir.Manager) (*transfer.Catalog, handler.ServiceCatalog, error) {
	catalog, err := transfer.DefaultCatalog(logger, wd)
	if err != nil {
		return nil, nil, err
	}

	return catalog, catalog, nil
}

func Codec(v *viper.Viper) (*credentials.Codec, error) {
	return credentials.NewCodec(v.GetString(ConfigCredentialsSecret))
}

func CredentialStore(
	logger *logrus.Logger,
	repo credentials.Repository,
	catalog *transfer.Catalog,
	codec *credentials.Codec,
) (*credentials.Store, handler.CredentialStore) {
	store := credentials.NewStore(logger, repo, catalog, codec)

	return store, store
}

func TransferManager(logger *logrus.Logger, catalog *transfer.Catalog, store *credentials.Store) domain.TransferManager {
	return transfer.NewManager(logger, catalog, store)
}
