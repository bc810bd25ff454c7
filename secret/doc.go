// Package secret resolves credential references in configuration values.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider)
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:GDRIVE_CLIENT_SECRET
//   - From file:   secretref:file:/run/secrets/client_secret
//   - Inline use:  Basic secretref:env:GDRIVE_BASIC_CREDS
//
// This keeps OAuth client secrets and signing keys out of config files while
// the rest of the configuration stays declarative.
package secret
