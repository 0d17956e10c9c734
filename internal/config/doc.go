// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional YAML file. Every setting has a
// TFP_-prefixed environment variable; required secrets have no defaults so a
// misconfigured process fails at startup instead of per request.
package config
