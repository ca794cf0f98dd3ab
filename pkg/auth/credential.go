package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Header names sent in the connection URL and in start extensions.
const (
	HeaderHost   = "host"
	HeaderDate   = "x-amz-date"
	HeaderAPIKey = "x-api-key"
)

// DateFormat is the basic ISO-8601 UTC layout of the x-amz-date header.
const DateFormat = "20060102T150405Z"

// ErrNotImplemented is returned for credential kinds without header support.
var ErrNotImplemented = errors.New("auth not implemented")

// ErrUnknownKind is returned by Parse for an unrecognised kind name.
var ErrUnknownKind = errors.New("unknown auth kind")

// Kind names an AppSync authorization scheme.
type Kind string

const (
	KindAPIKey Kind = "api_key"
	KindIAM    Kind = "iam"
	KindOIDC   Kind = "oidc"
	KindLambda Kind = "lambda"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// Credential is one of APIKey, IAM, OIDC or Lambda.
type Credential interface {
	Kind() Kind
}

// APIKey authorizes with a static API key.
type APIKey struct {
	Key string
}

// Kind returns KindAPIKey.
func (APIKey) Kind() Kind { return KindAPIKey }

// IAM authorizes with SigV4 signed requests.
type IAM struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
}

// Kind returns KindIAM.
func (IAM) Kind() Kind { return KindIAM }

// OIDC authorizes with an OpenID Connect token.
type OIDC struct {
	Token string
}

// Kind returns KindOIDC.
func (OIDC) Kind() Kind { return KindOIDC }

// Lambda authorizes with a token checked by a Lambda authorizer.
type Lambda struct {
	Token string
}

// Kind returns KindLambda.
func (Lambda) Kind() Kind { return KindLambda }

// Compile-time interface satisfaction checks.
var (
	_ Credential = APIKey{}
	_ Credential = IAM{}
	_ Credential = OIDC{}
	_ Credential = Lambda{}
)

// Headers derives the authorization header set for host at time now.
func Headers(cred Credential, host string, now time.Time) (map[string]string, error) {
	switch c := cred.(type) {
	case APIKey:
		return apiKeyHeaders(c, host, now), nil
	case *APIKey:
		if c == nil {
			return nil, fmt.Errorf("%w: nil credential", ErrNotImplemented)
		}
		return apiKeyHeaders(*c, host, now), nil
	case nil:
		return nil, fmt.Errorf("%w: nil credential", ErrNotImplemented)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, cred.Kind())
	}
}

func apiKeyHeaders(c APIKey, host string, now time.Time) map[string]string {
	return map[string]string{
		HeaderHost:   host,
		HeaderDate:   now.UTC().Format(DateFormat),
		HeaderAPIKey: c.Key,
	}
}

// Parse builds a credential from a kind name and its secret.
// For api_key the secret is the key; for oidc and lambda it is the token.
// IAM credentials cannot be expressed as a single secret and are returned
// empty, failing later at header derivation like any unsupported kind.
func Parse(kind, secret string) (Credential, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindAPIKey, "":
		return APIKey{Key: secret}, nil
	case KindIAM:
		return IAM{}, nil
	case KindOIDC:
		return OIDC{Token: secret}, nil
	case KindLambda:
		return Lambda{Token: secret}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
