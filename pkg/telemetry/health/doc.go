// Package health provides liveness and readiness probes for keygate.
//
// Liveness answers as long as the process can serve HTTP. Readiness runs a
// check per backend (the key store and the request log storage) with a
// per-check timeout and reports 503 when any of them fails:
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.RegisterBackend("keystore", keys)
//	checker.RegisterBackend("requestlog", logs)
//	checker.Mount(router, &cfg.Telemetry.Health, health.NewVersionInfo(version, commit, date))
//
// Backends that implement Pinger are pinged on every readiness request.
// Backends without a connectivity notion are reported healthy.
package health
