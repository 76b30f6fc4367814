package playback

import "sync/atomic"

// Provider identifies a decoding backend or audio device implementation.
type Provider uint8

const (
	ProviderAuto      Provider = iota // Let library choose best available
	ProviderSynthetic                 // Pure-Go test pattern / tone backend
	ProviderFFmpeg                    // libavformat/libavcodec via go-astiav
	ProviderOpenAL                    // OpenAL device via purego
	ProviderNullAudio                 // Clocked silent device
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL  License = iota // Copyleft - requires source disclosure
	LicenseLGPL                // Weak copyleft - dynamic linking is fine
	LicenseBSD                 // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseGPL:
		return "GPL"
	case LicenseLGPL:
		return "LGPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// Features is a bitmask of provider capabilities.
type Features uint32

const (
	FeatureSeek           Features = 1 << iota // Keyframe seeking
	FeatureThreadedDecode                      // Internal multi-threaded decode
	FeatureScale                               // Native pixel conversion/scaling
	FeatureResample                            // Native audio resampling
	FeatureGain                                // Device-side gain
	FeatureRealtime                            // Consumes audio at wall-clock rate
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

// providerMeta contains static metadata about a provider.
type providerMeta struct {
	Name     string
	License  License
	Backend  bool
	Device   bool
	Features Features
}

// Static metadata table - indexed by Provider, zero allocations.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:      {"auto", LicenseBSD, false, false, 0},
	ProviderSynthetic: {"synthetic", LicenseBSD, true, false, FeatureSeek | FeatureScale | FeatureResample},
	ProviderFFmpeg:    {"ffmpeg", LicenseLGPL, true, false, FeatureSeek | FeatureThreadedDecode | FeatureScale | FeatureResample},
	ProviderOpenAL:    {"openal", LicenseLGPL, false, true, FeatureGain | FeatureRealtime},
	ProviderNullAudio: {"null", LicenseBSD, false, true, FeatureGain | FeatureRealtime},
}

// Runtime availability - set when an implementation registers itself.
var providerAvailable [providerCount]atomic.Bool

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Features returns the provider's feature bitmask.
func (p Provider) Features() Features {
	if p >= providerCount {
		return 0
	}
	return providerInfo[p].Features
}

// IsBackend returns true if the provider demuxes and decodes.
func (p Provider) IsBackend() bool {
	if p >= providerCount {
		return false
	}
	return providerInfo[p].Backend
}

// IsDevice returns true if the provider is an audio output device.
func (p Provider) IsDevice() bool {
	if p >= providerCount {
		return false
	}
	return providerInfo[p].Device
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// setProviderAvailable marks a provider as available (called by implementations).
func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}
