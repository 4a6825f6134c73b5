package httpx

import "golang.org/x/crypto/acme/autocert"

// certCacheDir keeps issued certificates across relay restarts.
const certCacheDir = "assets/acme"

type TLS struct {
	CertManager *autocert.Manager
}

// NewTLSConfig builds an ACME certificate manager, restricted to the
// given host when one is configured.
func NewTLSConfig(host string) *TLS {
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(certCacheDir),
	}
	if host != "" {
		m.HostPolicy = autocert.HostWhitelist(host)
	}
	return &TLS{CertManager: m}
}
