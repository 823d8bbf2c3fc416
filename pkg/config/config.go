// Package config loads the external configuration record consumed by
// the core session: which host/repo/branch to track, where to write the
// checkout, and optional proxy settings. The loader is a thin,
// replaceable collaborator around core.Session, never the source of
// truth for fetch/merge semantics.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the resolved configuration record for one section.
type Config struct {
	Section         string
	Host            string
	Port            int
	RepositoryPath  string
	Branch          string
	TargetDirectory string
	WorkDirectory   string
	DisplayDepth    int
	Ignores         []string
	LowMemory       bool
	UseTLS          bool

	ProxyHost string
	ProxyPort int
	ProxyUser string
	ProxyPass string
}

type tomlSection struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Repository      string   `toml:"repository"`
	Branch          string   `toml:"branch"`
	TargetDirectory string   `toml:"target_directory"`
	WorkDirectory   string   `toml:"work_directory"`
	DisplayDepth    int      `toml:"display_depth"`
	Ignores         []string `toml:"ignores"`
	LowMemory       bool     `toml:"low_memory"`
	TLS             *bool    `toml:"tls"`
	ProxyHost       string   `toml:"proxy_host"`
	ProxyPort       int      `toml:"proxy_port"`
	ProxyUser       string   `toml:"proxy_user"`
	ProxyPass       string   `toml:"proxy_pass"`
}

// Load reads path as a TOML document of "[section]" tables and resolves
// the table named section into a Config.
func Load(path, section string) (*Config, error) {
	var doc map[string]tomlSection
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	raw, ok := doc[section]
	if !ok {
		return nil, fmt.Errorf("load config %s: no section %q", path, section)
	}

	cfg := &Config{
		Section:         section,
		Host:            raw.Host,
		Port:            raw.Port,
		RepositoryPath:  raw.Repository,
		Branch:          raw.Branch,
		TargetDirectory: raw.TargetDirectory,
		WorkDirectory:   raw.WorkDirectory,
		DisplayDepth:    raw.DisplayDepth,
		Ignores:         raw.Ignores,
		LowMemory:       raw.LowMemory,
		UseTLS:          true,
		ProxyHost:       raw.ProxyHost,
		ProxyPort:       raw.ProxyPort,
		ProxyUser:       raw.ProxyUser,
		ProxyPass:       raw.ProxyPass,
	}
	if raw.TLS != nil {
		cfg.UseTLS = *raw.TLS
	}
	if cfg.Port == 0 {
		if cfg.UseTLS {
			cfg.Port = 443
		} else {
			cfg.Port = 80
		}
	}

	if cfg.ProxyHost == "" {
		applyProxyEnv(cfg)
	}

	if cfg.Host == "" || cfg.RepositoryPath == "" || cfg.TargetDirectory == "" || cfg.WorkDirectory == "" {
		return nil, fmt.Errorf("config section %q: host, repository, target_directory, and work_directory are required", section)
	}

	return cfg, nil
}

// applyProxyEnv fills in proxy settings from HTTP_PROXY/HTTPS_PROXY when
// the config file didn't already specify one, matching
// "scheme://[user:pass@]host:port[/]".
func applyProxyEnv(cfg *Config) {
	raw := os.Getenv("HTTPS_PROXY")
	if raw == "" {
		raw = os.Getenv("https_proxy")
	}
	if raw == "" {
		raw = os.Getenv("HTTP_PROXY")
	}
	if raw == "" {
		raw = os.Getenv("http_proxy")
	}
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	host := u.Hostname()
	if host == "" {
		return
	}
	cfg.ProxyHost = strings.Trim(host, "[]")
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			cfg.ProxyPort = n
		}
	} else {
		cfg.ProxyPort = 80
	}
	if u.User != nil {
		cfg.ProxyUser = u.User.Username()
		cfg.ProxyPass, _ = u.User.Password()
	}
}
