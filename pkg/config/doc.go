// Package config provides configuration management for keygate.
//
// Configuration is read from an optional YAML file, completed with
// defaults, overridden from the environment and then validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("keygate.yaml")
//
// # Environment Variables
//
// Overrides follow the naming convention KEYGATE_SECTION_FIELD:
//
//   - KEYGATE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - KEYGATE_AUTH_ENVIRONMENT overrides auth.environment
//   - KEYGATE_LOGS_SQLITE_PATH overrides logs.sqlite.path
//
// The deployment variables API_ENV, ALLOWED_ORIGINS (comma-separated) and
// DB_NAME are also honoured for auth.environment, auth.keyless_origins and
// logs.collection. They are applied before the KEYGATE_ variables.
// LoadDotEnv reads a .env file into the environment first.
//
// # Validation
//
// All validation errors are collected into a single ValidationError:
//
//	configuration validation failed with 2 errors:
//	  - keys.path: path is required for the file backend
//	  - telemetry.logging.level: invalid log level "verbose" (must be debug, info, warn or error)
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8080"
//	  upstream_url: "http://localhost:3000"
//	  tls:
//	    enabled: true
//	    cert_file: "/etc/keygate/tls/server.crt"
//	    key_file: "/etc/keygate/tls/server.key"
//
//	auth:
//	  environment: "prod"
//	  keyless_origins:
//	    - "https://app.example.com"
//	  enforce: true
//
//	keys:
//	  backend: "file"
//	  path: "keys.yaml"
//	  watch: true
//
//	logs:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/requests.db"
//	  retention:
//	    days: 30
//	    archive:
//	      backend: "s3"
//	      s3:
//	        bucket: "keygate-archive"
//	        region: "eu-west-1"
package config
