package domain

import "time"

type ServiceType int

const (
	ServiceTypeLocal  ServiceType = 1
	ServiceTypeFTP    ServiceType = 2
	ServiceTypeS3     ServiceType = 4
	ServiceTypeWebDAV ServiceType = 5
)

// Credential set of a remote service, keyed by ServiceField.Key.
type Credentials map[string]string

// MaskedSecret replaces secret credential values in responses. Submitting it back
// on edit keeps the stored value.
const MaskedSecret = "********"

type ServiceField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret"`
}

// ServiceInfo describes one entry of the service catalog.
type ServiceInfo struct {
	Type   ServiceType    `json:"type"`
	Name   string         `json:"name"`
	Fields []ServiceField `json:"fields"`
}

func (i ServiceInfo) IsRemote() bool {
	return i.Type != ServiceTypeLocal
}

// ServiceConfig is the stored connection parameters of a remote service.
type ServiceConfig struct {
	Id            int64
	CreatorUserId int64
	ServiceName   string
	ServiceType   ServiceType

	// opaque encoded credentials
	CredentialBlob string

	CreatedAt  time.Time
	ModifiedAt time.Time
}
