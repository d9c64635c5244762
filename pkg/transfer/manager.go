package transfer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

type CredentialSource interface {
	Credentials(context.Context, domain.ServiceType) (domain.Credentials, error)
}

type Manager struct {
	logger logrus.FieldLogger

	catalog     *Catalog
	credentials CredentialSource
}

func NewManager(logger logrus.FieldLogger, catalog *Catalog, credentials CredentialSource) *Manager {
	return &Manager{
		logger:      logger,
		catalog:     catalog,
		credentials: credentials,
	}
}

func (m *Manager) Lookup(name string) (domain.ServiceInfo, error) {
	info, ok := m.catalog.ByName(name)
	if !ok {
		return info, errors.Wrapf(domain.ErrInvalidService, "%q", name)
	}
	return info, nil
}

func (m *Manager) Info(t domain.ServiceType) (domain.ServiceInfo, error) {
	info, ok := m.catalog.Info(t)
	if !ok {
		return info, errors.Wrapf(domain.ErrUnknownServiceType, "%d", t)
	}
	return info, nil
}

// Open builds a transfer for the service type, resolving stored credentials for remote services.
func (m *Manager) Open(ctx context.Context, t domain.ServiceType) (domain.Transfer, error) {
	s, ok := m.catalog.service(t)
	if !ok {
		return nil, errors.Wrapf(domain.ErrUnknownServiceType, "%d", t)
	}

	var creds domain.Credentials

	if s.Info.IsRemote() {
		var err error

		creds, err = m.credentials.Credentials(ctx, t)
		if err != nil {
			return nil, err
		}
	}

	tr, err := s.Factory(creds)
	if err != nil {
		appcontext.LoggerFromContext(m.logger, ctx).
			WithError(err).
			WithField("service", s.Info.Name).
			Warn("Unable to configure transfer")

		return nil, errors.Wrapf(err, "Unable to configure %s", s.Info.Name)
	}

	return tr, nil
}
