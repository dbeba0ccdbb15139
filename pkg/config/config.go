// Package config loads the pipeline's runtime tunables — ledger window,
// notes cadence and trigger phrases, provider timeouts, and the persisted
// session root — from an optional YAML file and environment variables,
// using github.com/spf13/viper the way tphakala-birdnet-go's internal/conf
// package loads its runtime settings. This governs pipeline *behavior*; the
// command-line argument parser and interactive setup wizard stay out of
// scope per spec.md section 1.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved set of pipeline tunables. Zero-value fields
// are never handed to a pipeline component directly; Load always fills in
// the documented defaults first.
type Config struct {
	Ledger    LedgerConfig
	Notes     NotesConfig
	Providers ProvidersConfig
	SessionDir string
}

// LedgerConfig tunes the transcript ledger of spec.md section 4.5.
type LedgerConfig struct {
	OverlapWindowMs int64
	PruneThreshold  int
}

// NotesConfig tunes the notes engine of spec.md section 4.6.
type NotesConfig struct {
	CycleInterval  time.Duration
	TriggerPhrases []string
}

// ProvidersConfig tunes the timeouts every network-calling backend obeys,
// per spec.md section 5's suspension-point contract (connect <= 5s,
// read <= 60s).
type ProvidersConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	STTBackend        string
	SummarizerBackend string
}

// defaults mirrors spec.md's stated constants so a deployment with no config
// file or environment overrides still runs to the letter of the spec.
func defaults(v *viper.Viper) {
	v.SetDefault("ledger.overlap_window_ms", 15000)
	v.SetDefault("ledger.prune_threshold", 2000)

	v.SetDefault("notes.cycle_interval", "10s")
	v.SetDefault("notes.trigger_phrases", []string{"decided", "decision", "action item", "will", "owes"})

	v.SetDefault("providers.connect_timeout", "5s")
	v.SetDefault("providers.read_timeout", "60s")
	v.SetDefault("providers.stt_backend", "groq-stt")
	v.SetDefault("providers.summarizer_backend", "anthropic-summarizer")

	v.SetDefault("session_dir", "./sessions")
}

// Load reads meetloop.yaml from the given search paths (the working
// directory is always included), applies MEETLOOP_-prefixed environment
// variable overrides, and returns the resolved Config. A missing config
// file is not an error — defaults and environment variables alone are
// enough to run.
func Load(searchPaths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName("meetloop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	defaults(v)

	v.SetEnvPrefix("MEETLOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: reading meetloop.yaml: %w", err)
		}
	}

	cycleInterval, err := time.ParseDuration(v.GetString("notes.cycle_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("config: notes.cycle_interval: %w", err)
	}
	connectTimeout, err := time.ParseDuration(v.GetString("providers.connect_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("config: providers.connect_timeout: %w", err)
	}
	readTimeout, err := time.ParseDuration(v.GetString("providers.read_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("config: providers.read_timeout: %w", err)
	}

	return Config{
		Ledger: LedgerConfig{
			OverlapWindowMs: v.GetInt64("ledger.overlap_window_ms"),
			PruneThreshold:  v.GetInt("ledger.prune_threshold"),
		},
		Notes: NotesConfig{
			CycleInterval:  cycleInterval,
			TriggerPhrases: v.GetStringSlice("notes.trigger_phrases"),
		},
		Providers: ProvidersConfig{
			ConnectTimeout:    connectTimeout,
			ReadTimeout:       readTimeout,
			STTBackend:        v.GetString("providers.stt_backend"),
			SummarizerBackend: v.GetString("providers.summarizer_backend"),
		},
		SessionDir: v.GetString("session_dir"),
	}, nil
}
