//go:build (darwin || linux) && !noopenal

// OpenAL audio output loaded dynamically via purego.

package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	openALOnce    sync.Once
	openALHandle  uintptr
	openALInitErr error

	// The current context is process-global in OpenAL.
	openALContextMu sync.Mutex
)

// OpenAL function pointers
var (
	alcOpenDevice         func(name *byte) uintptr
	alcCloseDevice        func(device uintptr) bool
	alcCreateContext      func(device uintptr, attrs uintptr) uintptr
	alcDestroyContext     func(context uintptr)
	alcMakeContextCurrent func(context uintptr) bool
	alcGetString          func(device uintptr, param int32) uintptr

	alGetError             func() int32
	alGenSources           func(n int32, sources *uint32)
	alDeleteSources        func(n int32, sources *uint32)
	alGenBuffers           func(n int32, buffers *uint32)
	alDeleteBuffers        func(n int32, buffers *uint32)
	alBufferData           func(buffer uint32, format int32, data unsafe.Pointer, size int32, freq int32)
	alSourceQueueBuffers   func(source uint32, n int32, buffers *uint32)
	alSourceUnqueueBuffers func(source uint32, n int32, buffers *uint32)
	alGetSourcei           func(source uint32, param int32, value *int32)
	alSourcef              func(source uint32, param int32, value float32)
	alSourcePlay           func(source uint32)
	alSourcePause          func(source uint32)
	alSourceStop           func(source uint32)
)

// Constants from al.h / alc.h
const (
	alNoError = 0

	alFormatStereo16 = 0x1103
	alGain           = 0x100A
	alSourceState    = 0x1010
	alInitial        = 0x1011
	alPlaying        = 0x1012
	alPaused         = 0x1013
	alStopped        = 0x1014
	alBuffersQueued  = 0x1015
	alBuffersProcd   = 0x1016

	alcDefaultDeviceSpecifier     = 0x1004
	alcDeviceSpecifier            = 0x1005
	alcDefaultAllDevicesSpecifier = 0x1012
	alcAllDevicesSpecifier        = 0x1013
)

func loadOpenAL() error {
	openALOnce.Do(func() {
		openALInitErr = loadOpenALLib()
	})
	return openALInitErr
}

func loadOpenALLib() error {
	var lastErr error
	for _, path := range getOpenALLibPaths() {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		openALHandle = handle
		if err := loadOpenALSymbols(); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load OpenAL: %w", lastErr)
	}
	return errors.New("OpenAL not found in any standard location")
}

func getOpenALLibPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return nativeLibPaths("PLAYBACK_OPENAL_LIB",
			[]string{"libopenal.dylib", "libopenal.1.dylib"},
			[]string{
				"/opt/homebrew/opt/openal-soft/lib/libopenal.dylib",
				"/usr/local/opt/openal-soft/lib/libopenal.dylib",
				"/System/Library/Frameworks/OpenAL.framework/OpenAL",
			})
	default:
		return nativeLibPaths("PLAYBACK_OPENAL_LIB",
			[]string{"libopenal.so.1", "libopenal.so"},
			[]string{"libopenal.so.1", "libopenal.so"})
	}
}

func loadOpenALSymbols() (err error) {
	// RegisterLibFunc panics on missing symbols.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("OpenAL symbol lookup: %v", r)
		}
	}()

	purego.RegisterLibFunc(&alcOpenDevice, openALHandle, "alcOpenDevice")
	purego.RegisterLibFunc(&alcCloseDevice, openALHandle, "alcCloseDevice")
	purego.RegisterLibFunc(&alcCreateContext, openALHandle, "alcCreateContext")
	purego.RegisterLibFunc(&alcDestroyContext, openALHandle, "alcDestroyContext")
	purego.RegisterLibFunc(&alcMakeContextCurrent, openALHandle, "alcMakeContextCurrent")
	purego.RegisterLibFunc(&alcGetString, openALHandle, "alcGetString")

	purego.RegisterLibFunc(&alGetError, openALHandle, "alGetError")
	purego.RegisterLibFunc(&alGenSources, openALHandle, "alGenSources")
	purego.RegisterLibFunc(&alDeleteSources, openALHandle, "alDeleteSources")
	purego.RegisterLibFunc(&alGenBuffers, openALHandle, "alGenBuffers")
	purego.RegisterLibFunc(&alDeleteBuffers, openALHandle, "alDeleteBuffers")
	purego.RegisterLibFunc(&alBufferData, openALHandle, "alBufferData")
	purego.RegisterLibFunc(&alSourceQueueBuffers, openALHandle, "alSourceQueueBuffers")
	purego.RegisterLibFunc(&alSourceUnqueueBuffers, openALHandle, "alSourceUnqueueBuffers")
	purego.RegisterLibFunc(&alGetSourcei, openALHandle, "alGetSourcei")
	purego.RegisterLibFunc(&alSourcef, openALHandle, "alSourcef")
	purego.RegisterLibFunc(&alSourcePlay, openALHandle, "alSourcePlay")
	purego.RegisterLibFunc(&alSourcePause, openALHandle, "alSourcePause")
	purego.RegisterLibFunc(&alSourceStop, openALHandle, "alSourceStop")
	return nil
}

// IsOpenALAvailable checks if the OpenAL library can be loaded.
func IsOpenALAvailable() bool {
	return loadOpenAL() == nil
}

// OpenALDevice plays audio through one OpenAL source.
type OpenALDevice struct {
	mu sync.Mutex

	device  uintptr
	context uintptr
	source  uint32
	buffers []uint32
	name    string
}

// NewOpenALDevice opens the named OpenAL output device, or the default one
// when name is empty.
func NewOpenALDevice(name string) (*OpenALDevice, error) {
	if err := loadOpenAL(); err != nil {
		return nil, fmt.Errorf("OpenAL not available: %w", err)
	}

	var cname *byte
	if name != "" {
		buf := append([]byte(name), 0)
		cname = &buf[0]
	}
	device := alcOpenDevice(cname)
	if device == 0 {
		if name != "" {
			return nil, fmt.Errorf("alcOpenDevice %q failed", name)
		}
		return nil, errors.New("alcOpenDevice failed")
	}
	context := alcCreateContext(device, 0)
	if context == 0 {
		alcCloseDevice(device)
		return nil, errors.New("alcCreateContext failed")
	}

	d := &OpenALDevice{
		device:  device,
		context: context,
		name:    goStringFromPtr(alcGetString(device, alcDeviceSpecifier)),
	}

	err := d.withContext(func() error {
		alGenSources(1, &d.source)
		return openALError("alGenSources")
	})
	if err != nil {
		alcDestroyContext(context)
		alcCloseDevice(device)
		return nil, err
	}
	return d, nil
}

// Name returns the OpenAL device specifier.
func (d *OpenALDevice) Name() string { return d.name }

func (d *OpenALDevice) Provider() Provider { return ProviderOpenAL }

// withContext runs fn with this device's context current.
func (d *OpenALDevice) withContext(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.context == 0 {
		return ErrDeviceUnavailable
	}

	openALContextMu.Lock()
	defer openALContextMu.Unlock()
	if !alcMakeContextCurrent(d.context) {
		return errors.New("alcMakeContextCurrent failed")
	}
	alGetError() // Clear stale error state
	return fn()
}

func openALError(op string) error {
	if code := alGetError(); code != alNoError {
		return fmt.Errorf("%s: OpenAL error 0x%x", op, code)
	}
	return nil
}

func (d *OpenALDevice) CreateBuffers(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid buffer count %d", n)
	}
	ids := make([]uint32, n)
	err := d.withContext(func() error {
		alGenBuffers(int32(n), &ids[0])
		if err := openALError("alGenBuffers"); err != nil {
			return err
		}
		d.buffers = append(d.buffers, ids...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (d *OpenALDevice) Upload(buf uint32, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return errors.New("empty audio buffer")
	}
	return d.withContext(func() error {
		alBufferData(buf, alFormatStereo16, unsafe.Pointer(&pcm[0]), int32(len(pcm)), int32(sampleRate))
		runtime.KeepAlive(pcm)
		return openALError("alBufferData")
	})
}

func (d *OpenALDevice) Queue(bufs ...uint32) error {
	if len(bufs) == 0 {
		return nil
	}
	return d.withContext(func() error {
		alSourceQueueBuffers(d.source, int32(len(bufs)), &bufs[0])
		return openALError("alSourceQueueBuffers")
	})
}

func (d *OpenALDevice) Unqueue(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}
	ids := make([]uint32, n)
	err := d.withContext(func() error {
		alSourceUnqueueBuffers(d.source, int32(n), &ids[0])
		return openALError("alSourceUnqueueBuffers")
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (d *OpenALDevice) sourcei(param int32) int32 {
	var v int32
	if err := d.withContext(func() error {
		alGetSourcei(d.source, param, &v)
		return nil
	}); err != nil {
		return 0
	}
	return v
}

func (d *OpenALDevice) Processed() int { return int(d.sourcei(alBuffersProcd)) }

func (d *OpenALDevice) Queued() int { return int(d.sourcei(alBuffersQueued)) }

func (d *OpenALDevice) Playing() bool { return d.sourcei(alSourceState) == alPlaying }

func (d *OpenALDevice) Play() error {
	return d.withContext(func() error {
		alSourcePlay(d.source)
		return openALError("alSourcePlay")
	})
}

func (d *OpenALDevice) Pause() error {
	return d.withContext(func() error {
		alSourcePause(d.source)
		return openALError("alSourcePause")
	})
}

func (d *OpenALDevice) Stop() error {
	return d.withContext(func() error {
		alSourceStop(d.source)
		return openALError("alSourceStop")
	})
}

func (d *OpenALDevice) SetGain(gain float32) error {
	return d.withContext(func() error {
		alSourcef(d.source, alGain, gain)
		return openALError("alSourcef")
	})
}

// Close releases the source, buffers, context and device.
func (d *OpenALDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.context == 0 {
		return nil
	}

	openALContextMu.Lock()
	alcMakeContextCurrent(d.context)
	alSourceStop(d.source)
	src := d.source
	alDeleteSources(1, &src)
	if len(d.buffers) > 0 {
		alDeleteBuffers(int32(len(d.buffers)), &d.buffers[0])
	}
	alcMakeContextCurrent(0)
	openALContextMu.Unlock()

	alcDestroyContext(d.context)
	alcCloseDevice(d.device)
	d.context = 0
	d.device = 0
	d.buffers = nil
	return nil
}

func init() {
	if err := loadOpenAL(); err != nil {
		return
	}
	RegisterAudioDevice(ProviderOpenAL, func(name string, logger *slog.Logger) (AudioDevice, error) {
		d, err := NewOpenALDevice(name)
		if err != nil {
			return nil, err
		}
		logger.Info("audio device opened", "provider", ProviderOpenAL, "device", d.Name())
		return d, nil
	})
	RegisterDeviceLister(ProviderOpenAL, listOpenALDevices)
}

// listOpenALDevices enumerates outputs with ALC_ENUMERATE_ALL_EXT names,
// falling back to the basic specifier list.
func listOpenALDevices(context.Context) ([]DeviceInfo, error) {
	if err := loadOpenAL(); err != nil {
		return nil, err
	}

	names := goStringsFromList(alcGetString(0, alcAllDevicesSpecifier))
	def := goStringFromPtr(alcGetString(0, alcDefaultAllDevicesSpecifier))
	if len(names) == 0 {
		names = goStringsFromList(alcGetString(0, alcDeviceSpecifier))
		def = goStringFromPtr(alcGetString(0, alcDefaultDeviceSpecifier))
	}

	devices := make([]DeviceInfo, 0, len(names))
	for _, n := range names {
		devices = append(devices, DeviceInfo{
			DeviceID: n,
			Label:    n,
			Provider: ProviderOpenAL,
			Default:  n == def,
		})
	}
	return devices, nil
}
