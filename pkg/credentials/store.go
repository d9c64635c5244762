package credentials

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/appcontext"
	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

type Repository interface {
	Create(context.Context, domain.ServiceConfig) (domain.ServiceConfig, error)
	Update(context.Context, domain.ServiceConfig) error
	Delete(ctx context.Context, id int64) error
	FindById(ctx context.Context, id int64) (domain.ServiceConfig, error)
	FindByType(context.Context, domain.ServiceType) (domain.ServiceConfig, error)
	FindAll(context.Context) ([]domain.ServiceConfig, error)
}

type Catalog interface {
	All() []domain.ServiceInfo
	Info(domain.ServiceType) (domain.ServiceInfo, bool)
	ByName(string) (domain.ServiceInfo, bool)
}

// Store keeps at most one credential set per remote service type.
type Store struct {
	logger logrus.FieldLogger

	repo    Repository
	catalog Catalog
	codec   *Codec

	now func() time.Time
}

func NewStore(logger logrus.FieldLogger, repo Repository, catalog Catalog, codec *Codec) *Store {
	return &Store{
		logger:  logger,
		repo:    repo,
		catalog: catalog,
		codec:   codec,
		now:     time.Now,
	}
}

func (s *Store) Save(ctx context.Context, userId int64, serviceName string, creds domain.Credentials) (domain.ServiceConfig, error) {
	logger := appcontext.LoggerFromContext(s.logger, appcontext.WithService(ctx, serviceName))

	info, ok := s.catalog.ByName(serviceName)
	if !ok {
		return domain.ServiceConfig{}, errors.Wrapf(domain.ErrInvalidService, "%q", serviceName)
	}
	if !info.IsRemote() {
		return domain.ServiceConfig{}, errors.Wrap(domain.ErrInvalidService, "local service has no credentials")
	}

	_, err := s.repo.FindByType(ctx, info.Type)
	if err == nil {
		return domain.ServiceConfig{}, domain.ErrServiceConfigExists
	}
	if errors.Cause(err) != domain.ErrServiceNotFound {
		return domain.ServiceConfig{}, err
	}

	blob, err := s.encode(info, creds)
	if err != nil {
		return domain.ServiceConfig{}, err
	}

	now := s.now()

	cfg, err := s.repo.Create(ctx, domain.ServiceConfig{
		CreatorUserId:  userId,
		ServiceName:    info.Name,
		ServiceType:    info.Type,
		CredentialBlob: blob,
		CreatedAt:      now,
		ModifiedAt:     now,
	})
	if err != nil {
		return cfg, err
	}

	logger.WithField("service_config_id", cfg.Id).Info("Service configured")

	return cfg, nil
}

func (s *Store) Edit(ctx context.Context, id int64, creds domain.Credentials) (domain.ServiceConfig, error) {
	cfg, err := s.repo.FindById(ctx, id)
	if err != nil {
		return cfg, err
	}

	info, ok := s.catalog.Info(cfg.ServiceType)
	if !ok {
		return cfg, errors.Wrapf(domain.ErrUnknownServiceType, "%d", cfg.ServiceType)
	}

	creds, err = s.keepMaskedSecrets(info, cfg.CredentialBlob, creds)
	if err != nil {
		return cfg, err
	}

	blob, err := s.encode(info, creds)
	if err != nil {
		return cfg, err
	}

	cfg.CredentialBlob = blob
	cfg.ModifiedAt = s.now()

	err = s.repo.Update(ctx, cfg)
	if err != nil {
		return cfg, err
	}

	appcontext.LoggerFromContext(s.logger, appcontext.WithService(ctx, info.Name)).
		WithField("service_config_id", cfg.Id).
		Info("Service configuration updated")

	return cfg, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.repo.FindById(ctx, id)
	if err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}

// Get returns the config together with its decoded credentials.
func (s *Store) Get(ctx context.Context, id int64) (domain.ServiceConfig, domain.Credentials, error) {
	cfg, err := s.repo.FindById(ctx, id)
	if err != nil {
		return cfg, nil, err
	}

	creds, err := s.codec.Decode(cfg.CredentialBlob)
	if err != nil {
		return cfg, nil, err
	}

	return cfg, creds, nil
}

func (s *Store) List(ctx context.Context) ([]domain.ServiceConfig, error) {
	return s.repo.FindAll(ctx)
}

// Credentials resolves the credential set of a service type.
func (s *Store) Credentials(ctx context.Context, t domain.ServiceType) (domain.Credentials, error) {
	cfg, err := s.repo.FindByType(ctx, t)
	if errors.Cause(err) == domain.ErrServiceNotFound {
		return nil, errors.Wrapf(domain.ErrMissingCredentials, "service type %d", t)
	}
	if err != nil {
		return nil, err
	}

	return s.codec.Decode(cfg.CredentialBlob)
}

// AvailableServiceTypes lists remote services which are not configured yet.
func (s *Store) AvailableServiceTypes(ctx context.Context) ([]domain.ServiceInfo, error) {
	configs, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	configured := make(map[domain.ServiceType]bool, len(configs))
	for _, cfg := range configs {
		configured[cfg.ServiceType] = true
	}

	var result []domain.ServiceInfo
	for _, info := range s.catalog.All() {
		if info.IsRemote() && !configured[info.Type] {
			result = append(result, info)
		}
	}

	return result, nil
}

// keepMaskedSecrets puts the stored value back for every secret field submitted as MaskedSecret.
func (s *Store) keepMaskedSecrets(info domain.ServiceInfo, blob string, creds domain.Credentials) (domain.Credentials, error) {
	var stored domain.Credentials

	result := make(domain.Credentials, len(creds))
	for k, v := range creds {
		result[k] = v
	}

	for _, field := range info.Fields {
		if !field.Secret || creds[field.Key] != domain.MaskedSecret {
			continue
		}

		if stored == nil {
			var err error

			stored, err = s.codec.Decode(blob)
			if err != nil {
				return nil, errors.Wrap(err, "Unable to read stored credentials")
			}
		}

		result[field.Key] = stored[field.Key]
	}

	return result, nil
}

func (s *Store) encode(info domain.ServiceInfo, creds domain.Credentials) (string, error) {
	clean := make(domain.Credentials, len(info.Fields))

	for _, field := range info.Fields {
		v := creds[field.Key]
		if !field.Secret {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			if field.Required {
				return "", errors.Wrapf(domain.ErrInvalidCredentials, "field %q is required", field.Label)
			}
			continue
		}
		clean[field.Key] = v
	}

	return s.codec.Encode(clean)
}
