package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/sitebackuper/pkg/workdir"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard

	return logger
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	result := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		result[f.Name] = string(b)
	}
	return result
}

func keys(m map[string]string) []string {
	var result []string
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func TestArchiver_Archive_ExcludesStaleFiles(t *testing.T) {
	root := t.TempDir()
	wd := workdir.New(filepath.Join(root, "backup"), "https://example.com/backup/")
	require.NoError(t, wd.Ensure())

	writeFile(t, filepath.Join(root, "index.php"), "<?php echo 1;")
	writeFile(t, filepath.Join(root, "wp-content", "style.css"), "body{}")
	writeFile(t, wd.Path("A.sql"), "stale dump")
	writeFile(t, wd.Path("B.zip"), "stale archive")
	writeFile(t, wd.Path("C.sql"), "INSERT INTO users VALUES (1);")

	a := New(discardLogger(), root, wd, "fp")

	f, err := a.Archive(context.Background(), wd.Path("C.sql"), "20240101000000")

	require.NoError(t, err)
	assert.Equal(t, "oping_archive_fp_20240101000000.zip", f.Name)
	assert.Equal(t, wd.Path(f.Name), f.Path)
	assert.Equal(t, "https://example.com/backup/oping_archive_fp_20240101000000.zip", f.Url)

	entries := zipEntries(t, f.Path)

	assert.Equal(t, []string{"backup/C.sql", "index.php", "wp-content/style.css"}, keys(entries))
	assert.Equal(t, "INSERT INTO users VALUES (1);", entries["backup/C.sql"])
}

func TestArchiver_ExcludedFiles(t *testing.T) {
	root := t.TempDir()
	wd := workdir.New(filepath.Join(root, "backup"), "")
	require.NoError(t, wd.Ensure())

	ledger := filepath.Join(root, "db", "sitebackuper.db")

	writeFile(t, filepath.Join(root, "index.php"), "<?php")
	writeFile(t, ledger, "LEDGER-AT-BACKUP-TIME")
	writeFile(t, ledger+"-wal", "wal")

	a := New(discardLogger(), root, wd, "fp", ledger, ledger+"-wal", ledger+"-journal")

	f, err := a.Archive(context.Background(), "", "1")
	require.NoError(t, err)

	assert.Equal(t, []string{"index.php"}, keys(zipEntries(t, f.Path)))

	// an archive made without the exclusion still must not overwrite the live file
	legacy, err := New(discardLogger(), root, wd, "fp").Archive(context.Background(), "", "2")
	require.NoError(t, err)
	require.Contains(t, zipEntries(t, legacy.Path), "db/sitebackuper.db")

	writeFile(t, ledger, "LIVE-LEDGER")

	require.NoError(t, a.Extract(context.Background(), legacy.Path, root))

	b, err := os.ReadFile(ledger)
	require.NoError(t, err)
	assert.Equal(t, "LIVE-LEDGER", string(b))
}

func TestArchiver_Archive_ExtraFileOutsideRoot(t *testing.T) {
	root := t.TempDir()
	wd := workdir.New(t.TempDir(), "")

	writeFile(t, filepath.Join(root, "index.php"), "x")
	writeFile(t, wd.Path("dump.sql"), "dump")

	a := New(discardLogger(), root, wd, "fp")

	f, err := a.Archive(context.Background(), wd.Path("dump.sql"), "1")

	require.NoError(t, err)
	assert.Equal(t, []string{"dump.sql", "index.php"}, keys(zipEntries(t, f.Path)))
}

func TestArchiver_Archive_HardensXmlrpc(t *testing.T) {
	root := t.TempDir()
	wd := workdir.New(filepath.Join(root, "backup"), "")
	require.NoError(t, wd.Ensure())

	xmlrpc := filepath.Join(root, "xmlrpc.php")
	writeFile(t, xmlrpc, "<?php")
	require.NoError(t, os.Chmod(xmlrpc, 0777))

	a := New(discardLogger(), root, wd, "fp")

	_, err := a.Archive(context.Background(), "", "1")
	require.NoError(t, err)

	info, err := os.Stat(xmlrpc)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestArchiver_RoundTrip(t *testing.T) {
	root := t.TempDir()
	wd := workdir.New(t.TempDir(), "")

	files := map[string]string{
		"index.php":                  "<?php echo 'hello';",
		"wp-content/uploads/a.bin":   string([]byte{0, 1, 2, 3, 255}),
		"wp-content/themes/t/x.html": "<html></html>",
	}
	for name, content := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}

	a := New(discardLogger(), root, wd, "fp")

	f, err := a.Archive(context.Background(), "", "1")
	require.NoError(t, err)

	dest := t.TempDir()
	writeFile(t, filepath.Join(dest, "index.php"), "old content which is longer than the new one")

	err = a.Extract(context.Background(), f.Path, dest)
	require.NoError(t, err)

	for name, content := range files {
		b, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, content, string(b), name)
	}
}

func TestArchiver_Extract_RejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")

	zf, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(zf)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, zf.Close())

	a := New(discardLogger(), dir, workdir.New(dir, ""), "fp")

	err = a.Extract(context.Background(), path, filepath.Join(dir, "dest"))

	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}

func TestArchiver_Extract_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	a := New(discardLogger(), dir, workdir.New(dir, ""), "fp")

	err := a.Extract(context.Background(), filepath.Join(dir, "missing.zip"), dir)

	assert.Error(t, err)
}
