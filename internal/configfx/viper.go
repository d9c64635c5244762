package configfx

import (
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix              = "sitebackuper"
	DefaultConfigDirectory = "sitebackuper"
	DefaultConfigFile      = "sitebackuper"
)

var (
	defaultConfigPaths = []string{
		".",
		"./config",
		path.Join("/etc", DefaultConfigDirectory),
	}
)

func ViperProvider(logger *logrus.Logger, flagSet *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	err := v.BindPFlags(flagSet)
	if err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config from config file
	if configFile := v.GetString("config"); configFile != "" {
		// If user do specify config file, then this file MUST exist and be valid
		// so missing file is a fatal error

		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		// If user does not specify config file, then we'll still try to find appropriate config,
		// but missing file is not an error

		v.SetConfigName(DefaultConfigFile)

		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			logger.WithError(err).Warn("Couldn't read config file")
		}
	}

	return v, nil
}

// Keys which depend on other keys (backup.directory, backup.url, site.identity)
// are resolved by their providers.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.caller", false)

	v.SetDefault("db.dsn", "./db/sitebackuper.db")
	v.SetDefault("db.max_open_conns", 1)

	v.SetDefault("site.root", ".")
	v.SetDefault("site.db.driver", "mysql")

	v.SetDefault("lease.backup_ttl", 6*time.Hour)
	v.SetDefault("lease.restore_ttl", 30*time.Minute)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval", 24*time.Hour)
	v.SetDefault("schedule.start", "03:00")
	v.SetDefault("schedule.service", "Localhost")

	v.SetDefault("notify.timeout", 15*time.Second)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.timeout.read", 10*time.Second)
	v.SetDefault("server.timeout.write", 30*time.Second)
	v.SetDefault("server.log.requests", true)
}
