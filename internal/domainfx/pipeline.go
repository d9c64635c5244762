package domainfx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/sitebackuper/internal/configfx"
	"github.com/yurykabanov/sitebackuper/internal/sqlfx"
	"github.com/yurykabanov/sitebackuper/pkg/archive"
	"github.com/yurykabanov/sitebackuper/pkg/artifact"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
	"github.com/yurykabanov/sitebackuper/pkg/lease"
	"github.com/yurykabanov/sitebackuper/pkg/metrics"
	"github.com/yurykabanov/sitebackuper/pkg/notify"
	"github.com/yurykabanov/sitebackuper/pkg/sitedb"
	"github.com/yurykabanov/sitebackuper/pkg/workdir"
)

const (
	ConfigNotifyEndpoint = "notify.endpoint"
	ConfigNotifyTimeout  = "notify.timeout"
	ConfigNotifySalt     = "notify.salt"
)

type Fingerprint string

func FingerprintProvider(config *configfx.SiteConfig) Fingerprint {
	return Fingerprint(artifact.Fingerprint(config.Identity))
}

// Archiver never packs the ledger, which lives under the site root with the default config.
func Archiver(
	logger *logrus.Logger,
	config *configfx.SiteConfig,
	ledger *sqlfx.SqliteConfig,
	wd *workdir.Manager,
	fp Fingerprint,
) domain.Archiver {
	return archive.New(logger, config.Root, wd, string(fp), ledger.Files()...)
}

func Dumper(logger *logrus.Logger, site *sqlfx.SiteDatabase, wd *workdir.Manager, fp Fingerprint) domain.Dumper {
	return sitedb.NewDumper(logger, site.DB, site.Dialect, wd, string(fp))
}

// Replayer protects the ledger tables only when the site database is the ledger itself.
// Site tables which merely share a name with them are restored like any other.
func Replayer(logger *logrus.Logger, site *sqlfx.SiteDatabase, ledger *sqlfx.SqliteConfig) domain.Replayer {
	var protected []string
	if site.SharesLedger(ledger) {
		logger.Warn("Site database is the ledger database, ledger tables will not be restored")
		protected = sqlfx.LedgerTables
	}

	return sitedb.NewReplayer(logger, site.DB, site.Dialect, protected...)
}

func LeaseManager(logger *logrus.Logger, repo lease.Repository) (*lease.Manager, domain.LeaseManager) {
	m := lease.NewManager(logger, repo)

	return m, m
}

func Metrics() (*metrics.Collector, domain.Observer) {
	c := metrics.New(prometheus.DefaultRegisterer)

	return c, c
}

func Notifier(logger *logrus.Logger, v *viper.Viper, config *configfx.SiteConfig) *notify.Client {
	return notify.New(logger, notify.Config{
		Endpoint: v.GetString(ConfigNotifyEndpoint),
		Timeout:  v.GetDuration(ConfigNotifyTimeout),
		Salt:     v.GetString(ConfigNotifySalt),
		SiteUrl:  config.Url,
	})
}
