package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config carries transport endpoints plus the product-tuned debounce and
// protection windows. The durations are tuning knobs, not protocol: defaults
// below match observed device behavior but every deployment may override them.
type Config struct {
	SignalURL  string   `mapstructure:"signal_url"`
	ICEServers []string `mapstructure:"ice_servers"`

	// Dev signaling server only.
	Port   int    `mapstructure:"port"`
	Mode   string `mapstructure:"mode"`
	Secret string `mapstructure:"secret"`

	MicToggleCooldown   time.Duration `mapstructure:"mic_toggle_cooldown"`
	CamToggleCooldown   time.Duration `mapstructure:"cam_toggle_cooldown"`
	RemoteAudioCooldown time.Duration `mapstructure:"remote_audio_cooldown"`
	NextCooldown        time.Duration `mapstructure:"next_cooldown"`
	CamProtectWindow    time.Duration `mapstructure:"cam_protect_window"`
	StopVerifyDelay     time.Duration `mapstructure:"stop_verify_delay"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in tuning without touching the filesystem.
// Used by the session registry when no config file is deployed.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config does not parse: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("signal_url", "wss://signal.meetloop.dev/ws")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("port", 8787)
	v.SetDefault("mode", "debug")
	v.SetDefault("secret", "devsecret")
	v.SetDefault("mic_toggle_cooldown", "300ms")
	v.SetDefault("cam_toggle_cooldown", "800ms")
	v.SetDefault("remote_audio_cooldown", "300ms")
	v.SetDefault("next_cooldown", "1500ms")
	v.SetDefault("cam_protect_window", "30s")
	v.SetDefault("stop_verify_delay", "250ms")
}
