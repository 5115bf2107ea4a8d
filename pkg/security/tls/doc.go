/*
Package tls serves the keygate listener over HTTPS.

NewServerConfig turns the server.tls block into a crypto/tls.Config. The
certificate is not pinned into the config; it is served through a
CertificateReloader so renewed files on disk take effect without a restart:

	tlsConfig, reloader, err := tls.NewServerConfig(&cfg.Server.TLS)
	if err != nil {
		return err
	}
	go reloader.Run(ctx)

Only TLS 1.2 and 1.3 are accepted. Certificates outside their validity
window are rejected at load time, and a certificate with less than thirty
days left is logged as a warning.
*/
package tls
