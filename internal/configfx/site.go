package configfx

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	ConfigSiteRoot        = "site.root"
	ConfigSiteUrl         = "site.url"
	ConfigSiteIdentity    = "site.identity"
	ConfigBackupDirectory = "backup.directory"
	ConfigBackupUrl       = "backup.url"
)

// SiteConfig describes the site being backed up and where its artifacts go.
type SiteConfig struct {
	Root     string
	Url      string
	Identity string

	BackupDirectory string
	BackupUrl       string
}

func SiteConfigProvider(v *viper.Viper) (*SiteConfig, error) {
	root, err := filepath.Abs(v.GetString(ConfigSiteRoot))
	if err != nil {
		return nil, errors.Wrap(err, "Invalid site root")
	}

	config := &SiteConfig{
		Root:            root,
		Url:             strings.TrimSuffix(v.GetString(ConfigSiteUrl), "/"),
		Identity:        v.GetString(ConfigSiteIdentity),
		BackupDirectory: v.GetString(ConfigBackupDirectory),
		BackupUrl:       v.GetString(ConfigBackupUrl),
	}

	if config.Identity == "" {
		config.Identity = config.Url
	}
	if config.Identity == "" {
		return nil, errors.Errorf("either %s or %s is required", ConfigSiteIdentity, ConfigSiteUrl)
	}

	if config.BackupDirectory == "" {
		config.BackupDirectory = filepath.Join(root, "backup")
	}
	if config.BackupUrl == "" && config.Url != "" {
		config.BackupUrl = config.Url + "/backup/"
	}

	return config, nil
}
