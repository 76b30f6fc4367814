package playback

import (
	"testing"
	"time"
)

func TestDecodePipeline_ReadErrorsEndStream(t *testing.T) {
	p := newTestPlayer(t, Config{MaxConsecutiveReadErrors: 5})
	events := watchEvents(p)
	openTestMedia(t, p, "synth:?duration=10s&fps=20&audio=0&readfail=4&width=64&height=48")

	p.Play()
	events.wait(t, EventEndReached, 2*time.Second)

	st := p.Stats()
	if st.PacketsRead != 4 {
		t.Errorf("PacketsRead = %d, want 4", st.PacketsRead)
	}
	if st.ReadErrors != 5 {
		t.Errorf("ReadErrors = %d, want 5", st.ReadErrors)
	}
	if p.State() != StateStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
}

func TestDecodePipeline_StopIsPrompt(t *testing.T) {
	p := newTestPlayer(t, Config{})
	// One frame per second: the loop spends its time in Pace.
	openTestMedia(t, p, "synth:?duration=30s&fps=1&audio=0&width=64&height=48")
	p.Play()
	time.Sleep(50 * time.Millisecond)

	d := p.pipeline
	start := time.Now()
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop took %v", elapsed)
	}
	if !d.finished() {
		t.Error("decode loop still running after Stop")
	}
}

func TestDecodePipeline_PausedLoopDoesNotRead(t *testing.T) {
	p := newTestPlayer(t, Config{})
	openTestMedia(t, p, "synth:?duration=5s&fps=10&audio=0&width=64&height=48")
	p.Play()
	time.Sleep(150 * time.Millisecond)
	p.Pause()
	time.Sleep(150 * time.Millisecond)

	read := p.Stats().PacketsRead
	time.Sleep(200 * time.Millisecond)
	if got := p.Stats().PacketsRead; got != read {
		t.Errorf("PacketsRead moved from %d to %d while paused", read, got)
	}
}

func TestDecodePipeline_AudioOnlyThrottled(t *testing.T) {
	p := newTestPlayer(t, Config{AudioQueueHighWater: 100 * time.Millisecond})
	openTestMedia(t, p, "synth:?duration=10s&video=0")
	p.Play()
	time.Sleep(300 * time.Millisecond)

	// Without the throttle the whole 10s would be queued almost at once.
	if pending := p.Stats().Audio.PendingDuration; pending > time.Second {
		t.Errorf("PendingDuration = %v, expected the reader to stay near the device", pending)
	}
}

func TestDecodePipeline_AudioOnlyPositionFollowsDevice(t *testing.T) {
	p := newTestPlayer(t, Config{AudioQueueHighWater: 500 * time.Millisecond})
	openTestMedia(t, p, "synth:?duration=10s&video=0")

	start := time.Now()
	p.Play()
	time.Sleep(400 * time.Millisecond)

	pos := p.PositionTime()
	elapsed := time.Since(start)
	if pos > elapsed+50*time.Millisecond {
		t.Errorf("position %v after %v of playback: ahead of the device", pos, elapsed)
	}
	if pos <= 0 {
		t.Errorf("position %v, expected played audio to be reported", pos)
	}
	if pending := p.Stats().Audio.PendingDuration; pending < 200*time.Millisecond {
		t.Errorf("PendingDuration = %v, expected the reader to run ahead", pending)
	}
}
