package sqlfx

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sitebackuper/pkg/sitedb"
)

const (
	ConfigSiteDbDriver = "site.db.driver"
	ConfigSiteDbDsn    = "site.db.dsn"
)

// SiteDatabase is the database of the site being backed up, as opposed to the ledger.
type SiteDatabase struct {
	DB      *sqlx.DB
	Dialect sitedb.Dialect

	Driver string
	DSN    string
}

// SharesLedger reports whether the site tables live in the ledger database file.
func (s *SiteDatabase) SharesLedger(ledger *SqliteConfig) bool {
	if s.Driver != sitedb.DriverSQLite {
		return false
	}

	path := sqlitePath(s.DSN)

	return path != "" && path == ledger.Path()
}

func OpenSiteDatabase(v *viper.Viper, logger *logrus.Logger) (*SiteDatabase, error) {
	driver := v.GetString(ConfigSiteDbDriver)

	dialect, err := sitedb.DialectFor(driver)
	if err != nil {
		return nil, err
	}

	dsn := v.GetString(ConfigSiteDbDsn)
	if dsn == "" {
		return nil, errors.Errorf("%s is required", ConfigSiteDbDsn)
	}

	db, err := sitedb.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	logger.WithField("driver", dialect.Name()).Debug("Site database configured")

	return &SiteDatabase{DB: db, Dialect: dialect, Driver: driver, DSN: dsn}, nil
}

func CloseSiteDatabase(lc fx.Lifecycle, site *SiteDatabase) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return site.DB.Close()
		},
	})
}
