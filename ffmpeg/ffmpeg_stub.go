//go:build !cgo || noffmpeg

// Package ffmpeg registers a playback backend built on FFmpeg. This build
// has it disabled; plain paths fail with playback.ErrBackendNotFound.
package ffmpeg

// Available reports whether the backend was compiled in.
func Available() bool { return false }
