package artifact

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	TimestampLayout = "20060102150405"

	dumpPrefix    = "oping_db_"
	dumpExt       = ".sql"
	archivePrefix = "oping_archive_"
	archiveExt    = ".zip"
)

var ErrNotArchiveName = errors.New("not an archive name")

// File is a produced artifact.
type File struct {
	Name string
	Path string
	Url  string
}

// Fingerprint is a stable hash of the site identity used to namespace artifact names.
// The formula must not change: restores look artifacts up by name.
func Fingerprint(identity string) string {
	s := sha1.Sum([]byte("oPING" + identity + "BackUp"))
	m := md5.Sum([]byte(hex.EncodeToString(s[:])))
	return hex.EncodeToString(m[:])
}

func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

func DumpName(fingerprint, timestamp string) string {
	return fmt.Sprintf("%s%s_%s%s", dumpPrefix, fingerprint, timestamp, dumpExt)
}

func ArchiveName(fingerprint, timestamp string) string {
	return fmt.Sprintf("%s%s_%s%s", archivePrefix, fingerprint, timestamp, archiveExt)
}

// DumpNameForArchive maps "oping_archive_<fp>_<ts>.zip" to "oping_db_<fp>_<ts>.sql".
func DumpNameForArchive(archiveName string) (string, error) {
	if !strings.HasPrefix(archiveName, archivePrefix) || !strings.HasSuffix(archiveName, archiveExt) {
		return "", errors.Wrapf(ErrNotArchiveName, "%q", archiveName)
	}

	suffix := strings.TrimSuffix(strings.TrimPrefix(archiveName, archivePrefix), archiveExt)
	if suffix == "" {
		return "", errors.Wrapf(ErrNotArchiveName, "%q", archiveName)
	}

	return dumpPrefix + suffix + dumpExt, nil
}

// NamesFromURL derives archive and dump names from a stored backup url.
func NamesFromURL(backupUrl string) (archiveName, dumpName string, err error) {
	if backupUrl == "" {
		return "", "", errors.Wrap(ErrNotArchiveName, "empty url")
	}

	p := backupUrl
	if u, err := url.Parse(backupUrl); err == nil && u.Path != "" {
		p = u.Path
	}

	archiveName = path.Base(p)

	dumpName, err = DumpNameForArchive(archiveName)
	if err != nil {
		return "", "", err
	}

	return archiveName, dumpName, nil
}
