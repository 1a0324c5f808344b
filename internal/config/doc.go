// Package config defines the sos-server settings and provides helpers to
// load, validate and save them in YAML format.
//
// Validate fills in defaults for every optional section, so a file holding
// only a listen address is a complete configuration.
package config
