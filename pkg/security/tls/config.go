package tls

import (
	"crypto/tls"
	"fmt"

	"mercator-hq/keygate/pkg/config"
)

// NewServerConfig loads the configured key pair and returns a tls.Config
// whose certificate is served from the returned reloader. It returns nil
// values when TLS is disabled.
func NewServerConfig(cfg *config.TLSConfig) (*tls.Config, *CertificateReloader, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil, nil
	}

	minVersion, err := parseVersion(cfg.MinVersion)
	if err != nil {
		return nil, nil, err
	}
	suites, err := parseCipherSuites(cfg.CipherSuites)
	if err != nil {
		return nil, nil, err
	}

	reloader := NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval)
	if err := reloader.Load(); err != nil {
		return nil, nil, err
	}

	// #nosec G402 - MinVersion is 1.2 or higher
	tlsConfig := &tls.Config{
		MinVersion:     minVersion,
		CipherSuites:   suites,
		GetCertificate: reloader.GetCertificateFunc(),
	}

	return tlsConfig, reloader, nil
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "1.3", "":
		return tls.VersionTLS13, nil
	case "1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}

	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[s.Name] = s.ID
	}

	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}
