// Package ffmpeg plans bitrate budgets and re-encodes downloaded media to a
// delivery-compatible h264/aac mp4 through a toolexec.Runner.
package ffmpeg
