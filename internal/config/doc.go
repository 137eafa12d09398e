// Package config loads the runtime configuration of the Based Agent chat
// service. Values come from an optional JSON file, a local .env file and the
// process environment, in increasing order of precedence.
package config
