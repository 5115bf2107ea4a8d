package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// CertificateReloader keeps a key pair loaded from disk and picks up
// replacements (e.g. renewed certificates) without a restart.
type CertificateReloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewCertificateReloader creates a reloader for the given files. A
// non-positive interval defaults to five minutes.
func NewCertificateReloader(certFile, keyFile string, interval time.Duration) *CertificateReloader {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CertificateReloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   slog.Default().With("component", "tls.reloader"),
		now:      time.Now,
	}
}

// Load reads the key pair from disk, replacing the served certificate
// only when the new pair is valid.
func (r *CertificateReloader) Load() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return fmt.Errorf("certificate file not found: %w", err)
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return fmt.Errorf("key file not found: %w", err)
	}

	cert, leaf, err := LoadKeyPair(r.certFile, r.keyFile, r.now())
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()

	days := DaysUntilExpiry(leaf, r.now())
	if days < expiryWarningDays {
		r.logger.Warn("certificate expiring soon",
			"subject", leaf.Subject.CommonName,
			"expires_in_days", days,
			"expires_at", leaf.NotAfter.Format(time.RFC3339),
		)
	} else {
		r.logger.Info("certificate loaded",
			"subject", leaf.Subject.CommonName,
			"issuer", leaf.Issuer.CommonName,
			"expires_in_days", days,
		)
	}

	return nil
}

// Run polls the certificate files until ctx is done. A failed reload keeps
// the previous certificate in service.
func (r *CertificateReloader) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.Load(); err != nil {
				r.logger.Error("failed to reload certificate",
					"error", err,
					"cert_file", r.certFile,
				)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// changed reports whether either file is newer than the loaded pair.
func (r *CertificateReloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

// GetCertificate returns the certificate currently in service.
func (r *CertificateReloader) GetCertificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificateFunc adapts the reloader to tls.Config.GetCertificate.
func (r *CertificateReloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert := r.GetCertificate()
		if cert == nil {
			return nil, fmt.Errorf("no certificate loaded")
		}
		return cert, nil
	}
}

// Check fails once the served certificate has expired. It is registered
// as a readiness check.
func (r *CertificateReloader) Check(context.Context) error {
	cert := r.GetCertificate()
	if cert == nil || cert.Leaf == nil {
		return fmt.Errorf("no certificate loaded")
	}
	if r.now().After(cert.Leaf.NotAfter) {
		return fmt.Errorf("certificate expired on %s", cert.Leaf.NotAfter.Format(time.RFC3339))
	}
	return nil
}
