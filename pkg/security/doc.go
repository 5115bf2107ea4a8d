/*
Package security groups keygate's credential and transport code.

# API Key Authorization

Package auth decides whether a request is authorized. A credential is read
from the request, looked up in the key store and checked against the
deployment environment, or the request is admitted by origin:

	policy := auth.NewPolicy(cfg.Auth.Environment, cfg.Auth.KeylessOrigins)
	authorizer := auth.NewAuthorizer(keys, policy, nil)

	verdict := authorizer.Evaluate(ctx, req.Credential, req.Origin)

# TLS

Package tls serves the listener over HTTPS with certificates that reload
from disk:

	tlsConfig, reloader, err := tls.NewServerConfig(&cfg.Server.TLS)
*/
package security
