package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

type Workdir interface {
	URL(name string) string
}

func LocalService(workdir Workdir) Service {
	return Service{
		Info: domain.ServiceInfo{
			Type: domain.ServiceTypeLocal,
			Name: "Localhost",
		},
		Factory: func(domain.Credentials) (domain.Transfer, error) {
			return NewLocal(workdir), nil
		},
	}
}

// Local keeps archives where they were produced.
type Local struct {
	workdir Workdir
}

func NewLocal(workdir Workdir) *Local {
	return &Local{workdir: workdir}
}

func (l *Local) Upload(_ context.Context, localPath string) (domain.TransferResult, error) {
	return domain.TransferResult{
		Url:  l.workdir.URL(filepath.Base(localPath)),
		Path: localPath,
	}, nil
}

func (l *Local) Download(_ context.Context, remotePath, localDest string) error {
	if filepath.Clean(remotePath) == filepath.Clean(localDest) {
		return nil
	}

	in, err := os.Open(remotePath)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFile(localDest, in)
}

func (l *Local) Remove(_ context.Context, remotePath string) error {
	err := os.Remove(remotePath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
