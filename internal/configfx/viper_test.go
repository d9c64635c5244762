package configfx

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard

	return logger
}

func TestViperProvider_ConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sitebackuper.yaml")

	require.NoError(t, os.WriteFile(file, []byte("site:\n  root: /srv/site\nschedule:\n  interval: 12h\n"), 0644))

	t.Setenv("SITEBACKUPER_SITE_URL", "https://example.com")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Config file")
	require.NoError(t, fs.Parse([]string{"-c", file}))

	v, err := ViperProvider(discardLogger(), fs)
	require.NoError(t, err)

	assert.Equal(t, "/srv/site", v.GetString("site.root"))
	assert.Equal(t, "https://example.com", v.GetString("site.url"))
	assert.Equal(t, 12*time.Hour, v.GetDuration("schedule.interval"))
	assert.Equal(t, 30*time.Minute, v.GetDuration("lease.restore_ttl"))
}

func TestViperProvider_MissingExplicitFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Config file")
	require.NoError(t, fs.Parse([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}))

	_, err := ViperProvider(discardLogger(), fs)
	assert.Error(t, err)
}

func TestSiteConfigProvider(t *testing.T) {
	v := viper.New()
	v.Set(ConfigSiteRoot, "/srv/site")
	v.Set(ConfigSiteUrl, "https://example.com/")

	config, err := SiteConfigProvider(v)
	require.NoError(t, err)

	assert.Equal(t, "/srv/site", config.Root)
	assert.Equal(t, "https://example.com", config.Identity)
	assert.Equal(t, "/srv/site/backup", config.BackupDirectory)
	assert.Equal(t, "https://example.com/backup/", config.BackupUrl)

	v.Set(ConfigSiteIdentity, "blog")
	v.Set(ConfigBackupDirectory, "/var/backups/blog")

	config, err = SiteConfigProvider(v)
	require.NoError(t, err)
	assert.Equal(t, "blog", config.Identity)
	assert.Equal(t, "/var/backups/blog", config.BackupDirectory)

	_, err = SiteConfigProvider(viper.New())
	assert.Error(t, err)
}
