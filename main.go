// Command rustberry is the jukebox daemon: an RFID tag on the reader starts
// Spotify playback of the request stored on it, removing the tag stops
// playback. An admin HTTP interface switches modes and provisions tags.
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtesseract/rustberry/button"
	"github.com/mtesseract/rustberry/led"
	"github.com/mtesseract/rustberry/player"
	"github.com/mtesseract/rustberry/rfid"
	"github.com/mtesseract/rustberry/server"
)

func buildPlayer(cfg Config) (*player.Client, error) {
	tokens, err := player.NewAccessTokenProvider(player.TokenConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	return player.NewClient(tokens, player.ClientConfig{DeviceName: cfg.DeviceName})
}

func buildController(cfg Config) (*rfid.Controller, error) {
	var key []byte
	if cfg.KeyHex != "" {
		var err error
		key, err = hex.DecodeString(cfg.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid authentication key %q: %w", cfg.KeyHex, err)
		}
	}
	return rfid.Open(rfid.Config{Bus: cfg.Bus, Key: key})
}

func buildBlinker(cfg Config) (*led.Blinker, error) {
	if cfg.LEDPin == "" {
		return nil, nil
	}
	out, err := led.OpenPin(cfg.LEDPin)
	if err != nil {
		return nil, err
	}
	return led.NewBlinker(out)
}

func buildButtons(cfg Config) (*button.Watcher, error) {
	pins := map[string]button.Command{
		cfg.Buttons.Shutdown:   button.Shutdown,
		cfg.Buttons.VolumeUp:   button.VolumeUp,
		cfg.Buttons.VolumeDown: button.VolumeDown,
	}
	delete(pins, "")
	if len(pins) == 0 {
		return nil, nil
	}
	w := button.NewWatcher()
	for pin, cmd := range pins {
		in, err := button.OpenPin(pin)
		if err != nil {
			return nil, fmt.Errorf("binding %s button: %w", cmd, err)
		}
		w.Bind(in, cmd)
	}
	return w, nil
}

func main() {
	cfg := LoadConfig()
	log.Printf("Starting rustberry daemon %q", cfg.DeviceName)

	spotify, err := buildPlayer(cfg)
	if err != nil {
		log.Fatalf("Spotify configuration error: %v", err)
	}

	ctrl, err := buildController(cfg)
	if err != nil {
		log.Fatalf("Failed to open RFID reader: %v", err)
	}
	defer ctrl.Close()

	blinker, err := buildBlinker(cfg)
	if err != nil {
		log.Fatalf("Failed to open status LED: %v", err)
	}

	buttons, err := buildButtons(cfg)
	if err != nil {
		log.Fatalf("Failed to open buttons: %v", err)
	}
	var buttonEvents <-chan button.Command
	if buttons != nil {
		buttons.Start()
		defer buttons.Stop()
		buttonEvents = buttons.Events()
	}

	// Keep the interface value nil when no LED is wired, so the agent's nil
	// checks work.
	var ledDriver statusLED
	if blinker != nil {
		ledDriver = blinker
		blinker.Run(led.Loop{Cmd: led.Many{
			led.On(100 * time.Millisecond),
			led.Off(100 * time.Millisecond),
		}})
	}

	agent := NewAgent(cfg, ctrl, spotify, ledDriver, buttonEvents)

	srv := server.New(server.Config{Port: cfg.Port, DeviceName: cfg.DeviceName}, agent)
	agent.SetFeed(srv.Events())
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start admin server: %v", err)
	}
	defer srv.Stop()

	if cfg.PostInitCommand != "" {
		log.Printf("Running post-init command %q", cfg.PostInitCommand)
		if err := agent.runCommand(cfg.PostInitCommand); err != nil {
			log.Printf("Post-init command failed: %v", err)
		}
	}

	if err := agent.SetMode(server.ModeJukebox); err != nil {
		log.Fatalf("Failed to enter jukebox mode: %v", err)
	}
	defer agent.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, stopping...")
}
