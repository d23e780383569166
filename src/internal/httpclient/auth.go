package httpclient

import "net/http"

// AuthProvider adds authentication to requests
type AuthProvider interface {
	Apply(req *http.Request) error
}

// BearerTokenAuth adds Bearer token authentication
type BearerTokenAuth struct {
	Token string
}

func (a *BearerTokenAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// HeaderAuth sets a shared secret in a named header
type HeaderAuth struct {
	Header string
	Value  string
}

func (a *HeaderAuth) Apply(req *http.Request) error {
	req.Header.Set(a.Header, a.Value)
	return nil
}
