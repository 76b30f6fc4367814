package playback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DeviceInfo describes an audio output device.
type DeviceInfo struct {
	DeviceID string   // Name accepted by Config.AudioDeviceName
	Label    string   // Human-readable device name
	Provider Provider // Device layer the output belongs to
	Default  bool     // The provider's default output
}

// DeviceLister enumerates the outputs of one device provider.
type DeviceLister func(ctx context.Context) ([]DeviceInfo, error)

var (
	deviceListersMu sync.RWMutex
	deviceListers   = make(map[Provider]DeviceLister)
)

// RegisterDeviceLister registers the output enumeration of a device provider.
func RegisterDeviceLister(p Provider, lister DeviceLister) {
	deviceListersMu.Lock()
	defer deviceListersMu.Unlock()
	deviceListers[p] = lister
}

// ListAudioOutputs returns the outputs of every registered device provider,
// grouped by provider in preference order with each default listed first.
// A provider that fails to enumerate is skipped; its error is returned
// alongside the outputs that were found.
func ListAudioOutputs(ctx context.Context) ([]DeviceInfo, error) {
	deviceListersMu.RLock()
	providers := make([]Provider, 0, len(deviceListers))
	listers := make(map[Provider]DeviceLister, len(deviceListers))
	for p, l := range deviceListers {
		providers = append(providers, p)
		listers[p] = l
	}
	deviceListersMu.RUnlock()

	if len(providers) == 0 {
		return nil, fmt.Errorf("%w: no device provider registered", ErrDeviceUnavailable)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })

	var (
		devices []DeviceInfo
		errs    []error
	)
	for _, p := range providers {
		if err := ctx.Err(); err != nil {
			return devices, err
		}
		list, err := listers[p](ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Default && !list[j].Default })
		devices = append(devices, list...)
	}
	return devices, errors.Join(errs...)
}

// FindAudioOutput returns the output of provider p named id. An empty id
// selects the provider's default.
func FindAudioOutput(ctx context.Context, p Provider, id string) (DeviceInfo, error) {
	devices, err := ListAudioOutputs(ctx)
	for _, d := range devices {
		if d.Provider != p {
			continue
		}
		if (id == "" && d.Default) || (id != "" && d.DeviceID == id) {
			return d, nil
		}
	}
	if err != nil {
		return DeviceInfo{}, err
	}
	return DeviceInfo{}, fmt.Errorf("%w: %s has no output %q", ErrDeviceUnavailable, p, id)
}
