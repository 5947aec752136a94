package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mtesseract/rustberry/button"
	"github.com/mtesseract/rustberry/led"
	"github.com/mtesseract/rustberry/player"
	"github.com/mtesseract/rustberry/rfid"
	"github.com/mtesseract/rustberry/server"
)

// playbackTimeout bounds one Spotify API interaction.
const playbackTimeout = 10 * time.Second

// Player drives playback on the Connect device.
type Player interface {
	StartPlayback(ctx context.Context, spotifyURI string) error
	StopPlayback(ctx context.Context) error
}

// tagWatcher is the presence polling loop consumed by jukebox mode.
type tagWatcher interface {
	Events() <-chan rfid.Event
	Start()
	Stop()
}

// statusLED is the subset of the blinker the agent drives.
type statusLED interface {
	Run(cmd led.Cmd)
	On()
	Stop()
}

// Agent is the mode orchestrator. In jukebox mode it owns the tag watcher
// and maps presence to playback; in admin mode the reader is free for the
// provisioning endpoints.
type Agent struct {
	Logger *log.Logger

	config     Config
	ctrl       *rfid.Controller
	player     Player
	blinker    statusLED
	buttons    <-chan button.Command
	feed       *server.EventFeed
	runCommand func(command string) error
	newWatcher func() tagWatcher

	mu          sync.Mutex
	mode        server.Mode
	stopJukebox chan struct{}
	jukeboxDone chan struct{}
}

// NewAgent wires the orchestrator. The buttons channel may be nil when no
// button pins are configured.
func NewAgent(cfg Config, ctrl *rfid.Controller, p Player, blinker statusLED, buttons <-chan button.Command) *Agent {
	a := &Agent{
		Logger:  log.New(os.Stderr, "[agent] ", log.LstdFlags),
		config:  cfg,
		ctrl:    ctrl,
		player:  p,
		blinker: blinker,
		buttons: buttons,
		mode:    server.ModeStarting,
	}
	a.runCommand = a.runShellCommand
	a.newWatcher = func() tagWatcher { return rfid.NewWatcher(ctrl) }
	return a
}

// SetFeed attaches the WebSocket event feed. Optional; a nil feed disables
// publishing.
func (a *Agent) SetFeed(feed *server.EventFeed) {
	a.feed = feed
}

// CurrentMode returns the active operating mode.
func (a *Agent) CurrentMode() server.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// SetMode switches the operating mode, tearing down the jukebox loop when
// leaving jukebox mode.
func (a *Agent) SetMode(mode server.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if mode == a.mode {
		return nil
	}
	a.Logger.Printf("Switching mode: %s -> %s", a.mode, mode)

	a.stopJukeboxLocked()
	if mode == server.ModeJukebox {
		a.startJukeboxLocked()
	}
	a.mode = mode
	if a.feed != nil {
		a.feed.PublishMode(mode)
	}
	return nil
}

// Stop tears down the jukebox loop and leaves the agent in the starting mode.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopJukeboxLocked()
	a.mode = server.ModeStarting
}

func (a *Agent) startJukeboxLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	a.stopJukebox = stop
	a.jukeboxDone = done
	go a.runJukebox(a.newWatcher(), stop, done)
}

func (a *Agent) stopJukeboxLocked() {
	if a.stopJukebox == nil {
		return
	}
	close(a.stopJukebox)
	<-a.jukeboxDone
	a.stopJukebox = nil
	a.jukeboxDone = nil
}

// runJukebox is the jukebox mode main loop: tag presence starts playback,
// absence stops it, buttons run their shell commands.
func (a *Agent) runJukebox(watcher tagWatcher, stop chan struct{}, done chan struct{}) {
	defer close(done)
	a.Logger.Println("Jukebox mode running")

	watcher.Start()
	defer watcher.Stop()

	if a.blinker != nil {
		a.blinker.Run(led.Repeat{N: 1, Cmd: led.On(time.Second)})
	}

	for {
		select {
		case <-stop:
			a.Logger.Println("Jukebox mode stopped")
			return
		case ev := <-watcher.Events():
			a.handleTagEvent(ev)
		case cmd := <-a.buttons:
			a.handleButton(cmd)
		}
	}
}

func (a *Agent) handleTagEvent(ev rfid.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
	defer cancel()

	switch ev.Kind {
	case rfid.TagPresent:
		req, err := player.ParseRequest(ev.Request)
		if err != nil {
			a.Logger.Printf("Ignoring tag %s: %v", ev.UID, err)
			return
		}
		if err := a.player.StartPlayback(ctx, req.SpotifyURI); err != nil {
			a.Logger.Printf("Failed to start playback: %v", err)
			return
		}
		if a.blinker != nil {
			a.blinker.On()
		}
	case rfid.TagAbsent:
		if err := a.player.StopPlayback(ctx); err != nil {
			a.Logger.Printf("Failed to stop playback: %v", err)
		}
		if a.blinker != nil {
			a.blinker.Stop()
		}
	}
	if a.feed != nil {
		a.feed.PublishTagEvent(ev)
	}
}

func (a *Agent) handleButton(cmd button.Command) {
	var command string
	switch cmd {
	case button.Shutdown:
		command = a.config.ShutdownCommand
	case button.VolumeUp:
		command = a.config.VolumeUpCommand
	case button.VolumeDown:
		command = a.config.VolumeDownCommand
	default:
		a.Logger.Printf("Unknown button command: %v", cmd)
		return
	}
	a.Logger.Printf("Button %s: running %q", cmd, command)
	if err := a.runCommand(command); err != nil {
		a.Logger.Printf("Command %q failed: %v", command, err)
	}
}

func (a *Agent) runShellCommand(command string) error {
	out, err := exec.Command("sh", "-c", command).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

// ReadTag reads the request document from the present tag. Only valid in
// admin mode, where the jukebox loop does not own the reader.
func (a *Agent) ReadTag(ctx context.Context) (string, error) {
	if a.CurrentMode() != server.ModeAdmin {
		return "", server.ErrNotAdminMode
	}
	tag, err := a.detectTag()
	if err != nil {
		return "", err
	}
	r := tag.NewReader()
	request, err := rfid.ReadString(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("reading tag %s: %w", tag.UID(), err)
	}
	return request, nil
}

// WriteTag stores a request document on the present tag. Only valid in admin
// mode.
func (a *Agent) WriteTag(ctx context.Context, request string) error {
	if a.CurrentMode() != server.ModeAdmin {
		return server.ErrNotAdminMode
	}
	if _, err := player.ParseRequest(request); err != nil {
		return err
	}
	tag, err := a.detectTag()
	if err != nil {
		return err
	}
	w := tag.NewWriter()
	err = rfid.WriteString(w, request)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing tag %s: %w", tag.UID(), err)
	}
	a.Logger.Printf("Provisioned tag %s", tag.UID())
	return nil
}

func (a *Agent) detectTag() (*rfid.Tag, error) {
	tag, present, err := a.ctrl.DetectTag()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, fmt.Errorf("no tag on the reader")
	}
	return tag, nil
}
