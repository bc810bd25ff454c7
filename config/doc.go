// Package config loads service configuration from defaults, an optional YAML
// file, a .env file, and DRIVEBRIDGE_-prefixed environment variables, in
// increasing order of precedence.
package config
