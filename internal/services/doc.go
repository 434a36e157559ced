// Package services defines shared utilities consumed by the acquisition
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers and the link being
//     acquired for logging.
//   - Structured error markers (validation, network, external tool, integrity,
//     corruption) plus the Wrap helper that tags failures for classification.
//
// Integrations with external tools and APIs live in the subpackages: github
// (release feed), ytdlp (extraction), ffmpeg (transcode), and tiktok
// (slideshow synthesis).
package services
