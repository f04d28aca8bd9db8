// Package config loads, normalizes, and validates scheduler configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment overrides such as ADITIM_API_TOKEN. The Config type centralizes
// every knob the daemon and CLI need: data and log directories, the HTTP bind
// address and credentials, broadcast buffer sizing, and the optional Redis and
// Kafka relays.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
