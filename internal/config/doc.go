// Package config loads, normalizes, and validates parking-report
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PARKONECT_USERNAME and PARKONECT_PASSWORD. The Config type centralizes
// every knob the CLI and runner need: portal endpoints and timeouts, batch
// and retry policy, health ceilings, output locations, and the optional
// email notification target.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
