package transfer

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

type Factory func(creds domain.Credentials) (domain.Transfer, error)

type Service struct {
	Info    domain.ServiceInfo
	Factory Factory
}

// Catalog is the registry of storage services keyed by service type.
type Catalog struct {
	byType map[domain.ServiceType]Service
	byName map[string]domain.ServiceType
}

func NewCatalog(services ...Service) (*Catalog, error) {
	c := &Catalog{
		byType: make(map[domain.ServiceType]Service, len(services)),
		byName: make(map[string]domain.ServiceType, len(services)),
	}

	for _, s := range services {
		if err := c.Register(s); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Catalog) Register(s Service) error {
	if s.Factory == nil {
		return errors.Errorf("Service %q has no factory", s.Info.Name)
	}
	if _, ok := c.byType[s.Info.Type]; ok {
		return errors.Errorf("Service type %d is already registered", s.Info.Type)
	}
	if _, ok := c.byName[s.Info.Name]; ok {
		return errors.Errorf("Service name %q is already registered", s.Info.Name)
	}

	c.byType[s.Info.Type] = s
	c.byName[s.Info.Name] = s.Info.Type

	return nil
}

func (c *Catalog) All() []domain.ServiceInfo {
	result := make([]domain.ServiceInfo, 0, len(c.byType))
	for _, s := range c.byType {
		result = append(result, s.Info)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})

	return result
}

func (c *Catalog) Info(t domain.ServiceType) (domain.ServiceInfo, bool) {
	s, ok := c.byType[t]
	return s.Info, ok
}

func (c *Catalog) ByName(name string) (domain.ServiceInfo, bool) {
	t, ok := c.byName[name]
	if !ok {
		return domain.ServiceInfo{}, false
	}
	return c.Info(t)
}

func (c *Catalog) service(t domain.ServiceType) (Service, bool) {
	s, ok := c.byType[t]
	return s, ok
}

// DefaultCatalog registers every built-in service.
func DefaultCatalog(logger logrus.FieldLogger, workdir Workdir) (*Catalog, error) {
	return NewCatalog(
		LocalService(workdir),
		FTPService(logger),
		S3Service(),
		WebDAVService(),
	)
}
