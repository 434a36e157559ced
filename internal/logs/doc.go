// Package logs reads the daemon log file for `reembed logs`: the last N
// lines, then optionally new lines as they are appended. A file that shrinks
// (truncated or replaced) is read again from the start.
package logs
