// Package config loads the relay configuration from config.yaml.
//
// Sections:
//   - server  : http_port (default 8080), grpc_port (0 disables the gRPC
//     health probe), allowed_origins, max_message_size (default 4096)
//   - rooms   : ttl (15m), reap_interval (30s), buffer (10), sliding_ttl
//   - sessions: ttl (5m), reap_interval (30s), token_length (32),
//     cookie_secure (true)
//   - auth    : mode apikey|jwt|none for the admin API and probe; key_env and
//     jwt_secret_env name the environment variables holding the secrets
//   - alerts  : interval (30s), rules over the relay metric series, and
//     slack|teams|http webhooks
//   - log     : level debug|info|warn|error
//
// Load(path) applies Defaults before unmarshalling, then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to reload the file when it changes.
// The server uses it to change the log level without a restart.
package config
