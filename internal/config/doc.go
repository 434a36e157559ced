// Package config loads, normalizes, and validates reembed daemon settings.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DISCORD_BOT_TOKEN. Link-matching rules are not part of this file; they live
// in the hot-reloadable JSON document served by the rules package, whose path
// is configured here.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
