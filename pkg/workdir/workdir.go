package workdir

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Manager owns the backup working directory, where dumps and archives are
// produced, and knows the public url prefix it is served under.
type Manager struct {
	dir     string
	baseUrl string
}

func New(dir, baseUrl string) *Manager {
	return &Manager{
		dir:     filepath.Clean(dir),
		baseUrl: baseUrl,
	}
}

func (m *Manager) Dir() string {
	return m.dir
}

func (m *Manager) Ensure() error {
	err := os.MkdirAll(m.dir, 0755)
	if err != nil {
		return errors.Wrap(err, "Unable to create backup directory")
	}
	return nil
}

func (m *Manager) Path(name string) string {
	return filepath.Join(m.dir, name)
}

func (m *Manager) URL(name string) string {
	if m.baseUrl == "" {
		return name
	}
	return strings.TrimSuffix(m.baseUrl, "/") + "/" + name
}

// Files lists every regular file currently inside the working directory.
func (m *Manager) Files() ([]string, error) {
	var files []string

	err := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == m.dir {
				return filepath.SkipDir
			}
			return err
		}

		if d.Type().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// Remove deletes given files, missing ones are ignored.
func (m *Manager) Remove(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}

		err := os.Remove(p)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
