package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EnvResult holds the results of applying environment overrides.
type EnvResult struct {
	BackendKeys map[string]struct{}
	SigningKeys map[string]struct{}
	EnvUsed     bool
}

// EffectiveConfigResult is the merged view startup hands to the rest of
// the process: the canonical config plus the resolved address, db path and
// which source won ("flags", "config", or "env").
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ResolveConfigPath returns the config path to use: the flag value when
// explicitly set, otherwise PLACEME_CONFIG when present, otherwise the
// flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := strings.TrimSpace(os.Getenv("PLACEME_CONFIG")); v != "" {
		return v
	}
	return flagVal
}

// ParseConfigEnvs reads environment variables into a fresh Config and
// returns that env-only config plus an EnvResult describing keys present
// and whether envs were used. It does not mutate any caller-provided
// config.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	res := EnvResult{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("PLACEME_SERVER_ADDR"); v != "" {
		res.EnvUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	}
	if v := os.Getenv("PLACEME_DB_PATH"); v != "" {
		res.EnvUsed = true
		envCfg.Server.DBPath = v
	}
	if v := os.Getenv("PLACEME_LOG_LEVEL"); v != "" {
		res.EnvUsed = true
		envCfg.Logging.Level = v
	}
	if keys := parseList(os.Getenv("PLACEME_BACKEND_KEYS")); len(keys) > 0 {
		res.EnvUsed = true
		envCfg.Security.APIKeys.Backend = keys
		for _, k := range keys {
			res.BackendKeys[k] = struct{}{}
			res.SigningKeys[k] = struct{}{}
		}
	}
	if keys := parseList(os.Getenv("PLACEME_FRONTEND_KEYS")); len(keys) > 0 {
		res.EnvUsed = true
		envCfg.Security.APIKeys.Frontend = keys
	}
	if keys := parseList(os.Getenv("PLACEME_ADMIN_KEYS")); len(keys) > 0 {
		res.EnvUsed = true
		envCfg.Security.APIKeys.Admin = keys
	}
	if v := os.Getenv("PLACEME_CORS_ORIGINS"); v != "" {
		res.EnvUsed = true
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	return envCfg, res
}

// LoadEffective resolves the effective config from file and environment.
// Env values override file values field by field; the returned source
// names the dominant origin for the banner.
func LoadEffective(cfgPath string) (EffectiveConfigResult, EnvResult, error) {
	var eff EffectiveConfigResult
	fileCfg, err := Load(cfgPath)
	filePresent := err == nil
	if err != nil && !strings.Contains(err.Error(), "not found") {
		return eff, EnvResult{}, err
	}
	if fileCfg == nil {
		fileCfg = &Config{}
	}
	envCfg, envRes := ParseConfigEnvs()
	merged := *fileCfg
	mergeConfig(&merged, envCfg)

	eff.Config = &merged
	eff.Addr = merged.Addr()
	eff.DBPath = merged.Server.DBPath
	switch {
	case envRes.EnvUsed && filePresent:
		eff.Source = "config+env"
	case envRes.EnvUsed:
		eff.Source = "env"
	case filePresent:
		eff.Source = "config"
	default:
		eff.Source = "flags"
	}
	// fold file-configured backend keys into the signing set too
	for _, k := range merged.Security.APIKeys.Backend {
		envRes.BackendKeys[k] = struct{}{}
		envRes.SigningKeys[k] = struct{}{}
	}
	return eff, envRes, nil
}

// mergeConfig overlays non-zero fields of src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.DBPath != "" {
		dst.Server.DBPath = src.Server.DBPath
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if len(src.Security.APIKeys.Backend) > 0 {
		dst.Security.APIKeys.Backend = src.Security.APIKeys.Backend
	}
	if len(src.Security.APIKeys.Frontend) > 0 {
		dst.Security.APIKeys.Frontend = src.Security.APIKeys.Frontend
	}
	if len(src.Security.APIKeys.Admin) > 0 {
		dst.Security.APIKeys.Admin = src.Security.APIKeys.Admin
	}
	if len(src.Security.CORS.AllowedOrigins) > 0 {
		dst.Security.CORS.AllowedOrigins = src.Security.CORS.AllowedOrigins
	}
}

// ParseSize parses a humanized byte size ("64KB", "1MiB") and returns the
// fallback when the value is empty or unparseable.
func ParseSize(v string, fallback uint64) uint64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	n, err := humanize.ParseBytes(v)
	if err != nil || n == 0 {
		return fallback
	}
	return n
}

// ParsePeriod parses a retention period. It accepts Go duration syntax plus
// day ("30d") and week ("4w") suffixes which time.ParseDuration lacks.
func ParsePeriod(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty period")
	}
	if strings.HasSuffix(v, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid period %q: %w", v, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if strings.HasSuffix(v, "w") {
		n, err := strconv.Atoi(strings.TrimSuffix(v, "w"))
		if err != nil {
			return 0, fmt.Errorf("invalid period %q: %w", v, err)
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return time.ParseDuration(v)
}
