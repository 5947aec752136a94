package main

import (
	"flag"
	"os"
)

// Default shell commands bound to the buttons. Overridable through the
// environment on hosts with a different audio setup.
const (
	defaultShutdownCommand   = "sudo shutdown -h now"
	defaultVolumeUpCommand   = "amixer -q -M set PCM 10%+"
	defaultVolumeDownCommand = "amixer -q -M set PCM 10%-"
)

// Config carries the daemon configuration. Hardware wiring and the admin
// port come from CLI flags; Spotify credentials and shell command overrides
// come from the environment, matching how the device is provisioned.
type Config struct {
	Port    int
	Bus     string
	KeyHex  string
	LEDPin  string
	Buttons ButtonPins

	DeviceName   string
	ClientID     string
	ClientSecret string
	RefreshToken string

	PostInitCommand   string
	ShutdownCommand   string
	VolumeUpCommand   string
	VolumeDownCommand string
}

// ButtonPins names the GPIO lines of the push buttons. Empty pins are left
// unbound.
type ButtonPins struct {
	Shutdown   string
	VolumeUp   string
	VolumeDown string
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadConfig parses flags and reads the environment.
func LoadConfig() Config {
	var cfg Config
	flag.IntVar(&cfg.Port, "port", 3030, "Port of the admin HTTP interface")
	flag.StringVar(&cfg.Bus, "bus", "", "SPI bus of the RFID reader (default SPI0.0)")
	flag.StringVar(&cfg.KeyHex, "key", "", "Tag authentication key as 12 hex digits (default factory key)")
	flag.StringVar(&cfg.LEDPin, "led-pin", "", "GPIO pin of the status LED (optional)")
	flag.StringVar(&cfg.Buttons.Shutdown, "shutdown-pin", "", "GPIO pin of the shutdown button (optional)")
	flag.StringVar(&cfg.Buttons.VolumeUp, "volume-up-pin", "", "GPIO pin of the volume up button (optional)")
	flag.StringVar(&cfg.Buttons.VolumeDown, "volume-down-pin", "", "GPIO pin of the volume down button (optional)")
	flag.Parse()

	cfg.DeviceName = envOr("DEVICE_NAME", "rustberry")
	cfg.ClientID = os.Getenv("CLIENT_ID")
	cfg.ClientSecret = os.Getenv("CLIENT_SECRET")
	cfg.RefreshToken = os.Getenv("REFRESH_TOKEN")

	cfg.PostInitCommand = os.Getenv("POST_INIT_COMMAND")
	cfg.ShutdownCommand = envOr("SHUTDOWN_COMMAND", defaultShutdownCommand)
	cfg.VolumeUpCommand = envOr("VOLUME_UP_COMMAND", defaultVolumeUpCommand)
	cfg.VolumeDownCommand = envOr("VOLUME_DOWN_COMMAND", defaultVolumeDownCommand)
	return cfg
}
