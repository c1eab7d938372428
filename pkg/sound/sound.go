// Package sound plays short wav clips through the speaker, e.g. to announce
// the result of a localization.
package sound

import (
	"log/slog"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
)

type Player struct {
	soundsToPlay chan string
	log          *slog.Logger
}

// NewPlayer starts the playback goroutine.  If the speaker can't be opened
// the player still accepts sounds and logs that it can't play them.
func NewPlayer() *Player {
	p := &Player{
		soundsToPlay: make(chan string),
		log:          log.With("component", "sound"),
	}
	go p.loop()
	return p
}

func (p *Player) loop() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Sound playback crashed", "panic", r)
		}
		p.drain()
	}()

	sampleRate := beep.SampleRate(44100)
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/5)); err != nil {
		p.log.Warn("Failed to open speaker", "err", err)
		return
	}

	var ctrl *beep.Ctrl
	var s beep.StreamSeekCloser
	for path := range p.soundsToPlay {
		// A new sound cuts off the previous one.
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			s.Close()
			s = nil
		}

		f, err := os.Open(path)
		if err != nil {
			p.log.Warn("Failed to open sound", "path", path, "err", err)
			continue
		}
		s, _, err = wav.Decode(f)
		if err != nil {
			p.log.Warn("Failed to decode sound", "path", path, "err", err)
			f.Close()
			continue
		}
		ctrl = &beep.Ctrl{Streamer: s}
		speaker.Play(ctrl)
	}
}

func (p *Player) drain() {
	for path := range p.soundsToPlay {
		p.log.Info("Unable to play", "path", path)
	}
}

// Play queues path without waiting for long if the player is busy.  An empty
// path is ignored.
func (p *Player) Play(path string) {
	if path == "" {
		return
	}
	defer func() {
		recover() // Don't die if the player is already closed.
	}()
	select {
	case p.soundsToPlay <- path:
	case <-time.After(10 * time.Millisecond):
		p.log.Warn("Timed out trying to play sound", "path", path)
	}
}

func (p *Player) Close() {
	close(p.soundsToPlay)
}
