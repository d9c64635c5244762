package archive

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/artifact"
)

const hardenedFile = "xmlrpc.php"

var ErrArchiveMissing = errors.New("Error while creating archive file")

type Workdir interface {
	Dir() string
	Path(name string) string
	URL(name string) string
	Files() ([]string, error)
}

// Archiver zips the site tree into the working directory and extracts archives back.
type Archiver struct {
	logger logrus.FieldLogger

	root        string
	workdir     Workdir
	fingerprint string

	// absolute paths never archived and never overwritten on extract
	excluded map[string]struct{}
}

// New creates an archiver for the site root. Files listed in exclude (e.g. a database
// the process keeps open) are neither archived nor overwritten when extracting.
func New(logger logrus.FieldLogger, root string, workdir Workdir, fingerprint string, exclude ...string) *Archiver {
	excluded := make(map[string]struct{}, len(exclude))
	for _, path := range exclude {
		if abs, err := filepath.Abs(path); err == nil {
			excluded[abs] = struct{}{}
		}
	}

	return &Archiver{
		logger:      logger,
		root:        filepath.Clean(root),
		workdir:     workdir,
		fingerprint: fingerprint,
		excluded:    excluded,
	}
}

// Archive bundles every regular file under the site root plus extraFile.
// Files already present in the working directory, other than extraFile, are left out.
func (a *Archiver) Archive(ctx context.Context, extraFile, timestamp string) (artifact.File, error) {
	logger := appcontext.LoggerFromContext(a.logger, ctx)

	name := artifact.ArchiveName(a.fingerprint, timestamp)
	outfile := a.workdir.Path(name)

	// must be computed before the archive itself shows up in the working directory
	excluded, err := a.staleFiles(extraFile)
	if err != nil {
		return artifact.File{}, errors.Wrap(err, "Unable to scan backup directory")
	}
	stale := len(excluded)
	if abs, err := filepath.Abs(outfile); err == nil {
		excluded[abs] = struct{}{}
	}
	for path := range a.excluded {
		excluded[path] = struct{}{}
	}

	logger.WithField("excluded", stale).Debug("Creating archive")

	zf, err := os.Create(outfile)
	if err != nil {
		return artifact.File{}, errors.Wrap(err, "Unable to create archive file")
	}

	zw := zip.NewWriter(zf)

	err = a.addTree(ctx, zw, excluded)
	if err == nil && extraFile != "" && !a.inRoot(extraFile) {
		err = a.addFile(zw, extraFile, filepath.Base(extraFile))
	}
	if err != nil {
		_ = zw.Close()
		_ = zf.Close()
		return artifact.File{}, err
	}

	err = zw.Close()
	if err != nil {
		_ = zf.Close()
		return artifact.File{}, errors.Wrap(err, "Unable to finalize archive")
	}

	err = zf.Close()
	if err != nil {
		return artifact.File{}, errors.Wrap(err, "Unable to close archive file")
	}

	if _, err := os.Stat(outfile); err != nil {
		return artifact.File{}, ErrArchiveMissing
	}

	return artifact.File{
		Name: name,
		Path: outfile,
		Url:  a.workdir.URL(name),
	}, nil
}

func (a *Archiver) staleFiles(extraFile string) (map[string]struct{}, error) {
	files, err := a.workdir.Files()
	if err != nil {
		return nil, err
	}

	extra := ""
	if extraFile != "" {
		extra, _ = filepath.Abs(extraFile)
	}

	result := make(map[string]struct{}, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		if abs == extra {
			continue
		}
		result[abs] = struct{}{}
	}

	return result, nil
}

func (a *Archiver) addTree(ctx context.Context, zw *zip.Writer, excluded map[string]struct{}) error {
	return filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, skip := excluded[abs]; skip {
			return nil
		}

		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return err
		}

		if d.Name() == hardenedFile {
			if err := os.Chmod(path, 0644); err != nil {
				return errors.Wrapf(err, "Unable to change mode of %s", rel)
			}
		}

		return a.addFile(zw, path, filepath.ToSlash(rel))
	})
}

func (a *Archiver) addFile(zw *zip.Writer, path, nameInZip string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = nameInZip
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)
	if err != nil {
		return errors.Wrapf(err, "Unable to add %s to archive", nameInZip)
	}

	return nil
}

func (a *Archiver) inRoot(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rootAbs, err := filepath.Abs(a.root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Extract expands the archive into dest, overwriting existing files.
// Nothing is rolled back when it fails half way.
func (a *Archiver) Extract(ctx context.Context, archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrap(err, "Unable to open archive")
	}
	defer zr.Close()

	dest = filepath.Clean(dest)

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
			return errors.Errorf("Illegal file path in archive: %s", f.Name)
		}

		if abs, err := filepath.Abs(target); err == nil {
			if _, skip := a.excluded[abs]; skip {
				appcontext.LoggerFromContext(a.logger, ctx).
					WithField("file", f.Name).
					Warn("Archive entry overlaps an excluded file, skipping it")
				continue
			}
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return errors.Wrapf(err, "Unable to extract %s", f.Name)
		}
	}

	return nil
}

func extractFile(f *zip.File, target string) error {
	err := os.MkdirAll(filepath.Dir(target), 0755)
	if err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, rc)
	if err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
