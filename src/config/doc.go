// Package config defines the configuration of a Veracity node. A single
// Config object carries the data directories, the log level, the HTTP
// service address, and the tunable thresholds of the claims engine.
package config
