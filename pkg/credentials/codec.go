package credentials

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/yurykabanov/sitebackuper/pkg/domain"
)

var (
	ErrEmptySecret      = errors.New("credential secret is not configured")
	ErrEmptyCredentials = errors.New("credentials are empty")
)

// Codec turns credential sets into HS256 signed tokens and back.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return &Codec{secret: []byte(secret)}, nil
}

func (c *Codec) Encode(creds domain.Credentials) (string, error) {
	if len(creds) == 0 {
		return "", ErrEmptyCredentials
	}

	claims := make(jwt.MapClaims, len(creds))
	for k, v := range creds {
		claims[k] = v
	}

	blob, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", errors.Wrap(err, "Unable to encode credentials")
	}

	return blob, nil
}

func (c *Codec) Decode(blob string) (domain.Credentials, error) {
	claims := jwt.MapClaims{}

	_, err := jwt.ParseWithClaims(blob, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(err, "Unable to decode credentials")
	}

	creds := make(domain.Credentials, len(claims))
	for k, v := range claims {
		switch val := v.(type) {
		case string:
			creds[k] = val
		default:
			creds[k] = fmt.Sprint(val)
		}
	}

	if len(creds) == 0 {
		return nil, ErrEmptyCredentials
	}

	return creds, nil
}
