//go:build !(darwin || linux) || noopenal

package playback

// IsOpenALAvailable reports false: OpenAL support is not built in.
func IsOpenALAvailable() bool { return false }
