// Package playback is a media playback core: it opens a file or URI through
// a decoding backend, decodes the first video and audio streams on one
// goroutine, paces video frames to a consumer and feeds audio to an output
// device.
//
// Key pieces include:
//   - Player: Open/Play/Pause/Stop/Seek/Volume and an ordered event stream
//   - Backends: ffmpeg (go-astiav, cgo) and a synthetic "synth:" source
//   - FramePool: pooled BGRA/RGBA frames with a cap on frames in flight
//   - AudioOutput: a small ring of device buffers drained on its own goroutine
//   - Audio devices: OpenAL via purego, and a real-time null device
//
// # Architecture
//
//	Source.ReadPacket -> video: PlaybackClock.Pace -> Decoder -> VideoConverter -> FramePool -> OnFrame
//	                  -> audio: Decoder -> Resampler (or manual s16 stereo) -> AudioOutput -> AudioDevice
//
// Video frames are disposable: when the consumer holds MaxFramesInFlight
// frames, new frames are dropped and counted. Audio is never dropped; only
// device buffer availability throttles it, inside the AudioOutput goroutine.
//
// Frames handed to OnFrame are owned by the handler until it calls Release.
// After a seek, frames decoded before it carry an older Generation and are
// released by the player instead of delivered.
//
// # Native Libraries
//
// OpenAL is loaded at runtime with purego. Set PLAYBACK_OPENAL_LIB to the
// library path, or STREAM_SDK_LIB_PATH to a directory containing it. When
// OpenAL is missing the automatic device falls back to the null device.
//
// # Build Tags
//
// Optional tags disable features:
//   - noffmpeg: build the ffmpeg backend as a stub (also without cgo)
//   - noopenal: disable the OpenAL device
//
// # Configuration
//
// DefaultConfig holds the tunables (in-flight cap, audio prebuffer, poll
// intervals). ConfigFromEnv overlays PLAYBACK_* environment variables.
package playback
