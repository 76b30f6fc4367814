package playback

import (
	"testing"
	"time"
)

func newTestNullDevice() (*NullDevice, *fakeClock) {
	fc := &fakeClock{t: time.Unix(1000, 0)}
	d := NewNullDevice()
	d.now = fc.now
	return d, fc
}

// pcm100ms is 100ms of s16 stereo at 48kHz.
var pcm100ms = make([]byte, 4800*4)

func TestNullDevice_ConsumesInRealTime(t *testing.T) {
	d, fc := newTestNullDevice()
	ids, err := d.CreateBuffers(2)
	if err != nil {
		t.Fatalf("CreateBuffers: %v", err)
	}
	if ids[0] != 1 || ids[1] != 2 {
		t.Errorf("ids = %v, want [1 2]", ids)
	}
	for _, id := range ids {
		if err := d.Upload(id, pcm100ms, 48000); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}
	if err := d.Queue(ids...); err != nil {
		t.Fatalf("Queue: %v", err)
	}
	d.Play()

	fc.add(150 * time.Millisecond)
	if n := d.Processed(); n != 1 {
		t.Errorf("Processed = %d after 150ms, want 1", n)
	}
	if !d.Playing() {
		t.Error("Expected device to still be playing")
	}

	fc.add(50 * time.Millisecond)
	if n := d.Processed(); n != 2 {
		t.Errorf("Processed = %d after 200ms, want 2", n)
	}
	if d.Playing() {
		t.Error("Expected device to stop when the queue ran dry")
	}
	if got := d.Played(); got != 200*time.Millisecond {
		t.Errorf("Played = %v, want 200ms", got)
	}

	if _, err := d.Unqueue(3); err == nil {
		t.Error("Expected error unqueueing more than processed")
	}
	got, err := d.Unqueue(2)
	if err != nil || len(got) != 2 || got[0] != 1 {
		t.Errorf("Unqueue = %v, %v", got, err)
	}
	if n := d.Queued(); n != 0 {
		t.Errorf("Queued = %d, want 0", n)
	}
}

func TestNullDevice_PauseHoldsProgress(t *testing.T) {
	d, fc := newTestNullDevice()
	ids, _ := d.CreateBuffers(1)
	d.Upload(ids[0], pcm100ms, 48000)
	d.Queue(ids[0])
	d.Play()

	fc.add(60 * time.Millisecond)
	d.Pause()
	fc.add(time.Second)
	if n := d.Processed(); n != 0 {
		t.Fatalf("Processed = %d while paused, want 0", n)
	}

	d.Play()
	fc.add(39 * time.Millisecond)
	if n := d.Processed(); n != 0 {
		t.Errorf("Processed = %d before the remainder elapsed", n)
	}
	fc.add(time.Millisecond)
	if n := d.Processed(); n != 1 {
		t.Errorf("Processed = %d after resume, want 1", n)
	}
}

func TestNullDevice_StopMarksProcessed(t *testing.T) {
	d, _ := newTestNullDevice()
	ids, _ := d.CreateBuffers(3)
	for _, id := range ids {
		d.Upload(id, pcm100ms, 48000)
	}
	d.Queue(ids...)
	d.Play()
	d.Stop()

	if d.Playing() {
		t.Error("Expected device stopped")
	}
	if n := d.Processed(); n != 3 {
		t.Errorf("Processed = %d after Stop, want 3", n)
	}
	if got := d.Played(); got != 0 {
		t.Errorf("Played = %v, want 0", got)
	}
}

func TestNullDevice_Errors(t *testing.T) {
	d, _ := newTestNullDevice()
	ids, _ := d.CreateBuffers(1)

	if err := d.Upload(99, pcm100ms, 48000); err == nil {
		t.Error("Expected error for unknown buffer")
	}
	if err := d.Upload(ids[0], pcm100ms, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
	if err := d.Queue(99); err == nil {
		t.Error("Expected error queueing unknown buffer")
	}
	if err := d.Play(); err != nil || d.Playing() {
		t.Error("Play on an empty queue should be a no-op")
	}

	d.SetGain(0.25)
	if g := d.Gain(); g != 0.25 {
		t.Errorf("Gain = %v, want 0.25", g)
	}

	d.Close()
	if _, err := d.CreateBuffers(1); err == nil {
		t.Error("Expected error after Close")
	}
}

func TestOpenAudioDevice_Null(t *testing.T) {
	dev, err := OpenAudioDevice(ProviderNullAudio, "", nil)
	if err != nil {
		t.Fatalf("OpenAudioDevice: %v", err)
	}
	defer dev.Close()
	if dev.Provider() != ProviderNullAudio {
		t.Errorf("Provider = %v", dev.Provider())
	}

	auto, err := OpenAudioDevice(ProviderAuto, "", nil)
	if err != nil {
		t.Fatalf("OpenAudioDevice(auto): %v", err)
	}
	auto.Close()
}
