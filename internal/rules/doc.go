// Package rules persists and serves the hot-reloadable link rule document.
//
// The document is a small JSON file listing link-matching regular expressions
// with optional rewrite templates, plus optional admin routing. Store.Edit
// validates new text completely before rewriting the file and committing a
// new generation, so a failed edit never changes what readers see.
//
// Reads are lock-free in the common case. Each Reader keeps the last
// (generation, view) pair it saw and compares it to an atomic counter; only
// when an edit has landed does it take the store lock to copy the new pair.
// Store.Read keeps Readers in a sync.Pool for callers that have no long-lived
// worker of their own.
//
// Patterns may use $URLCHAR as shorthand for any URL character and always
// match case-insensitively.
package rules
