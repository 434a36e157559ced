// Package delivery decides what the chat layer posts for a message: which
// link to fetch, and what text to send when the upload is too large or the
// link has no video. It holds no I/O.
package delivery
