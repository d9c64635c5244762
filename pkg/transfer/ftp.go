package transfer

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

const (
	ftpDefaultPort = "21"
	ftpDialTimeout = 30 * time.Second
)

func FTPService(logger logrus.FieldLogger) Service {
	return Service{
		Info: domain.ServiceInfo{
			Type: domain.ServiceTypeFTP,
			Name: "FTP",
			Fields: []domain.ServiceField{
				{Key: "server", Label: "FTP Server", Placeholder: "ftp.example.com", Required: true},
				{Key: "path", Label: "Remote Directory", Placeholder: "/backups"},
				{Key: "username", Label: "Username", Required: true},
				{Key: "password", Label: "Password", Required: true, Secret: true},
			},
		},
		Factory: func(creds domain.Credentials) (domain.Transfer, error) {
			return NewFTP(logger, creds, dialFTP)
		},
	}
}

type ftpConn interface {
	Login(user, password string) error
	MakeDir(path string) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Retr(path string) (io.ReadCloser, error)
	Delete(path string) error
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string) (ftpConn, error)

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// jlaffaye/ftp logs in with TYPE I and uses passive mode by default.
func dialFTP(ctx context.Context, addr string) (ftpConn, error) {
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(ftpDialTimeout))
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

type FTP struct {
	logger logrus.FieldLogger
	dial   ftpDialer

	addr     string
	host     string
	dir      string
	username string
	password string
}

func NewFTP(logger logrus.FieldLogger, creds domain.Credentials, dial ftpDialer) (*FTP, error) {
	server := strings.TrimPrefix(creds["server"], "ftp://")
	if server == "" || creds["username"] == "" {
		return nil, domain.ErrMissingCredentials
	}

	addr := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		addr = net.JoinHostPort(server, ftpDefaultPort)
	}

	dir := creds["path"]
	if dir == "" {
		dir = "/"
	}

	return &FTP{
		logger:   logger,
		dial:     dial,
		addr:     addr,
		host:     server,
		dir:      path.Clean("/" + dir),
		username: creds["username"],
		password: creds["password"],
	}, nil
}

func (t *FTP) connect(ctx context.Context) (ftpConn, error) {
	c, err := t.dial(ctx, t.addr)
	if err != nil {
		return nil, errors.Wrap(err, "FTP connection failed")
	}

	err = c.Login(t.username, t.password)
	if err != nil {
		_ = c.Quit()
		return nil, errors.Wrap(err, "FTP login failed")
	}

	return c, nil
}

func (t *FTP) Upload(ctx context.Context, localPath string) (domain.TransferResult, error) {
	logger := appcontext.LoggerFromContext(t.logger, ctx)

	f, err := os.Open(localPath)
	if err != nil {
		return domain.TransferResult{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.TransferResult{}, err
	}

	c, err := t.connect(ctx)
	if err != nil {
		return domain.TransferResult{}, err
	}
	defer c.Quit()

	err = makeDirs(c, t.dir)
	if err != nil {
		return domain.TransferResult{}, err
	}

	remote := path.Join(t.dir, filepath.Base(localPath))

	r := newProgressReader(f, info.Size(), func(done, total int64) {
		logger.WithFields(logrus.Fields{"sent": done, "total": total}).Debug("FTP upload progress")
	})

	err = c.Stor(remote, r)
	if err != nil {
		return domain.TransferResult{}, errors.Wrap(err, "FTP upload failed")
	}

	logger.WithFields(logrus.Fields{"remote_path": remote, "size": info.Size()}).Info("Archive uploaded to FTP")

	return domain.TransferResult{
		Url:  "ftp://" + t.host + remote,
		Path: remote,
	}, nil
}

// makeDirs creates every segment of the absolute dir in turn. A segment which cannot
// be created but can be entered exists already.
func makeDirs(c ftpConn, dir string) error {
	current := ""

	for _, segment := range strings.Split(strings.Trim(dir, "/"), "/") {
		if segment == "" {
			continue
		}
		current += "/" + segment

		if err := c.MakeDir(current); err != nil {
			if c.ChangeDir(current) != nil {
				return errors.Wrapf(err, "Unable to create FTP directory %s", current)
			}
		}
	}

	return nil
}

func (t *FTP) Download(ctx context.Context, remotePath, localDest string) error {
	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Quit()

	r, err := c.Retr(remotePath)
	if err != nil {
		return errors.Wrap(err, "FTP download failed")
	}
	defer r.Close()

	err = writeFile(localDest, r)
	if err != nil {
		return errors.Wrap(err, "FTP download failed")
	}

	return nil
}

func (t *FTP) Remove(ctx context.Context, remotePath string) error {
	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Quit()

	return c.Delete(remotePath)
}

// progressReader reports every tenth of the payload.
type progressReader struct {
	r        io.Reader
	total    int64
	done     int64
	step     int64
	next     int64
	progress func(done, total int64)
}

func newProgressReader(r io.Reader, total int64, progress func(done, total int64)) *progressReader {
	step := total / 10
	if step < 1 {
		step = 1
	}

	return &progressReader{
		r:        r,
		total:    total,
		step:     step,
		next:     step,
		progress: progress,
	}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.done += int64(n)

	if p.done >= p.next && n > 0 {
		p.progress(p.done, p.total)
		p.next = p.done + p.step
	}

	return n, err
}
