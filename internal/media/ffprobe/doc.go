// Package ffprobe runs ffprobe and decides whether downloaded media can be
// delivered as-is.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Policy: size limit and accepted codecs of the delivery target
//   - Prober: runs the inspection through a toolexec.Runner and returns a
//     Classification (corrupt, or probed with compatibility and duration)
package ffprobe
