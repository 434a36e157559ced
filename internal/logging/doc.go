// Package logging assembles structured slog loggers and formatting helpers used
// across reembed.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers that tag log lines with the request
// ID and the link being acquired. The process logger is a fanout
// of the local handlers and a Remote sink whose destination (the chat admin
// log channel) can be attached exactly once after startup.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same shape and routing.
package logging
