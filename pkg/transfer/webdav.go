package transfer

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/studio-b12/gowebdav"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

func WebDAVService() Service {
	return Service{
		Info: domain.ServiceInfo{
			Type: domain.ServiceTypeWebDAV,
			Name: "WebDAV",
			Fields: []domain.ServiceField{
				{Key: "endpoint", Label: "Endpoint", Placeholder: "https://dav.example.com/remote.php/webdav", Required: true},
				{Key: "path", Label: "Remote Directory", Placeholder: "/backups"},
				{Key: "username", Label: "Username"},
				{Key: "password", Label: "Password", Secret: true},
			},
		},
		Factory: func(creds domain.Credentials) (domain.Transfer, error) {
			return NewWebDAV(creds)
		},
	}
}

type webdavClient interface {
	MkdirAll(path string, mode os.FileMode) error
	WriteStream(path string, stream io.Reader, mode os.FileMode) error
	ReadStream(path string) (io.ReadCloser, error)
	Remove(path string) error
}

type WebDAV struct {
	client   webdavClient
	endpoint string
	dir      string
}

func NewWebDAV(creds domain.Credentials) (*WebDAV, error) {
	endpoint := creds["endpoint"]
	if endpoint == "" {
		return nil, domain.ErrMissingCredentials
	}

	client := gowebdav.NewClient(endpoint, creds["username"], creds["password"])

	return newWebDAVWithClient(client, endpoint, creds["path"]), nil
}

func newWebDAVWithClient(client webdavClient, endpoint, dir string) *WebDAV {
	return &WebDAV{
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		dir:      path.Clean("/" + dir),
	}
}

func (t *WebDAV) Upload(_ context.Context, localPath string) (domain.TransferResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return domain.TransferResult{}, err
	}
	defer f.Close()

	err = t.client.MkdirAll(t.dir, 0755)
	if err != nil {
		return domain.TransferResult{}, errors.Wrap(err, "webdav")
	}

	remote := path.Join(t.dir, filepath.Base(localPath))

	err = t.client.WriteStream(remote, f, 0644)
	if err != nil {
		return domain.TransferResult{}, errors.Wrap(err, "webdav")
	}

	return domain.TransferResult{
		Url:  t.endpoint + remote,
		Path: remote,
	}, nil
}

func (t *WebDAV) Download(_ context.Context, remotePath, localDest string) error {
	r, err := t.client.ReadStream(remotePath)
	if err != nil {
		return errors.Wrap(err, "webdav")
	}
	defer r.Close()

	return errors.Wrap(writeFile(localDest, r), "webdav")
}

func (t *WebDAV) Remove(_ context.Context, remotePath string) error {
	return errors.Wrap(t.client.Remove(remotePath), "webdav")
}
