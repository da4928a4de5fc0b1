package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	appLog "github.com/agis/consultcal/internal/log"
)

const (
	envPrefix   = "CONSULTCAL_"
	projectFile = ".consultcal.toml"
)

// fileConfig is one TOML layer. A [profiles.<name>] table overrides the
// top-level keys when that profile is active.
type fileConfig struct {
	DB        string                `toml:"db"`
	TZ        string                `toml:"tz"`
	Output    string                `toml:"output"`
	Fields    string                `toml:"fields"`
	Owner     string                `toml:"owner"`
	WeekStart string                `toml:"week_start"`
	Listen    string                `toml:"listen"`
	Refresh   string                `toml:"refresh"`
	Timeout   string                `toml:"timeout"`
	Profile   string                `toml:"profile"`
	Profiles  map[string]fileConfig `toml:"profiles"`
}

// resolveGlobalOptions layers user config < project config < --config file
// < CONSULTCAL_* env < explicitly set flags.
func resolveGlobalOptions(cmd *cobra.Command, defaults *globalOptions) (*globalOptions, error) {
	resolved := *defaults

	profile := firstNonEmpty(env("PROFILE"), defaults.Profile)
	if flagValueChanged(cmd, "profile") {
		profile = defaults.Profile
	}
	if profile == "" {
		profile = "default"
	}
	resolved.Profile = profile

	userPath := defaultUserConfigPath()
	configPath := firstNonEmpty(env("CONFIG"), userPath)
	if flagValueChanged(cmd, "config") {
		configPath = defaults.Config
	}

	for _, path := range []string{userPath, projectFile} {
		if cfg, ok := readConfigFile(path); ok {
			applyFileConfig(&resolved, cfg, profile)
		}
	}
	if configPath != "" && configPath != userPath && configPath != projectFile {
		if cfg, ok := readConfigFile(configPath); ok {
			applyFileConfig(&resolved, cfg, profile)
		}
	}

	applyEnv(&resolved)
	applyFlags(cmd, &resolved, defaults)

	if resolved.Config == "" {
		resolved.Config = configPath
	}
	return &resolved, nil
}

func applyFileConfig(dst *globalOptions, cfg fileConfig, profile string) {
	if p, ok := cfg.Profiles[profile]; ok {
		cfg = mergeFileConfig(cfg, p)
	}
	setIfNotEmpty(&dst.DB, expandHome(cfg.DB))
	setIfNotEmpty(&dst.TZ, cfg.TZ)
	setIfNotEmpty(&dst.Fields, cfg.Fields)
	setIfNotEmpty(&dst.Owner, cfg.Owner)
	setIfNotEmpty(&dst.WeekStart, cfg.WeekStart)
	setIfNotEmpty(&dst.Listen, cfg.Listen)
	setIfNotEmpty(&dst.Refresh, cfg.Refresh)
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			dst.Timeout = d
		}
	}
	applyOutputMode(dst, cfg.Output)
}

func mergeFileConfig(base, overlay fileConfig) fileConfig {
	setIfNotEmpty(&base.DB, overlay.DB)
	setIfNotEmpty(&base.TZ, overlay.TZ)
	setIfNotEmpty(&base.Output, overlay.Output)
	setIfNotEmpty(&base.Fields, overlay.Fields)
	setIfNotEmpty(&base.Owner, overlay.Owner)
	setIfNotEmpty(&base.WeekStart, overlay.WeekStart)
	setIfNotEmpty(&base.Listen, overlay.Listen)
	setIfNotEmpty(&base.Refresh, overlay.Refresh)
	setIfNotEmpty(&base.Timeout, overlay.Timeout)
	setIfNotEmpty(&base.Profile, overlay.Profile)
	return base
}

func applyEnv(dst *globalOptions) {
	setIfNotEmpty(&dst.DB, expandHome(env("DB")))
	setIfNotEmpty(&dst.TZ, env("TIMEZONE"))
	setIfNotEmpty(&dst.Fields, env("FIELDS"))
	setIfNotEmpty(&dst.Owner, env("OWNER"))
	applyOutputMode(dst, env("OUTPUT"))
	if v := env("NO_INPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			dst.NoInput = b
		}
	}
}

func applyOutputMode(dst *globalOptions, mode string) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "json":
		dst.JSON, dst.JSONL, dst.Plain = true, false, false
	case "jsonl":
		dst.JSON, dst.JSONL, dst.Plain = false, true, false
	case "plain":
		dst.JSON, dst.JSONL, dst.Plain = false, false, true
	}
}

func applyFlags(cmd *cobra.Command, dst, fromFlags *globalOptions) {
	copyIfChanged(cmd, "json", func() { dst.JSON = fromFlags.JSON })
	copyIfChanged(cmd, "jsonl", func() { dst.JSONL = fromFlags.JSONL })
	copyIfChanged(cmd, "plain", func() { dst.Plain = fromFlags.Plain })
	copyIfChanged(cmd, "fields", func() { dst.Fields = fromFlags.Fields })
	copyIfChanged(cmd, "quiet", func() { dst.Quiet = fromFlags.Quiet })
	copyIfChanged(cmd, "verbose", func() { dst.Verbose = fromFlags.Verbose })
	copyIfChanged(cmd, "no-color", func() { dst.NoColor = fromFlags.NoColor })
	copyIfChanged(cmd, "no-input", func() { dst.NoInput = fromFlags.NoInput })
	copyIfChanged(cmd, "profile", func() { dst.Profile = fromFlags.Profile })
	copyIfChanged(cmd, "config", func() { dst.Config = fromFlags.Config })
	copyIfChanged(cmd, "db", func() { dst.DB = fromFlags.DB })
	copyIfChanged(cmd, "tz", func() { dst.TZ = fromFlags.TZ })
	copyIfChanged(cmd, "owner", func() { dst.Owner = fromFlags.Owner })
	copyIfChanged(cmd, "week-start", func() { dst.WeekStart = fromFlags.WeekStart })
	copyIfChanged(cmd, "listen", func() { dst.Listen = fromFlags.Listen })
	copyIfChanged(cmd, "refresh", func() { dst.Refresh = fromFlags.Refresh })
	copyIfChanged(cmd, "timeout", func() { dst.Timeout = fromFlags.Timeout })
	copyIfChanged(cmd, "schema-version", func() { dst.SchemaVersion = fromFlags.SchemaVersion })

	// A single explicit output flag beats env/config output mode.
	var explicit []string
	for name, on := range map[string]bool{"json": fromFlags.JSON, "jsonl": fromFlags.JSONL, "plain": fromFlags.Plain} {
		if on && flagValueChanged(cmd, name) {
			explicit = append(explicit, name)
		}
	}
	if len(explicit) == 1 {
		applyOutputMode(dst, explicit[0])
	}
}

func copyIfChanged(cmd *cobra.Command, name string, fn func()) {
	if flagValueChanged(cmd, name) {
		fn()
	}
}

func flagValueChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

func readConfigFile(path string) (fileConfig, bool) {
	if strings.TrimSpace(path) == "" {
		return fileConfig{}, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, false
	}
	var cfg fileConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		appLog.Error("ignoring unreadable config", err, "path", path)
		return fileConfig{}, false
	}
	return cfg, true
}

func defaultUserConfigPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "consultcal", "config.toml")
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "consultcal", "config.toml")
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func env(k string) string { return strings.TrimSpace(os.Getenv(envPrefix + k)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
