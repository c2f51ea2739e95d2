// Package config loads the service settings from an ini file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/Another0Noob/animecatalog/internal/foreign"
)

// Catalog ids served by default.
const (
	CatalogPopular = "cat_pop"
	CatalogNew     = "cat_new"
	CatalogFav     = "cat_fav"
	CatalogSearch  = "cat_search"
)

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type PrimaryConfig struct {
	BaseURL    string
	SearchPath string
	Headers    map[string]string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// CatalogConfig maps a served catalog to a primary source listing path.
type CatalogConfig struct {
	ID   string
	Name string
	Type string
	Path string
}

type VisualConfig struct {
	BaseURL    string
	DetailPath string
	Timeout    time.Duration
}

type MetaConfig struct {
	CinemetaURL string
	KitsuURL    string
	Timeout     time.Duration
}

type StoreConfig struct {
	Driver        string
	Dir           string
	FlushInterval time.Duration
}

type EnrichConfig struct {
	BatchSize   int
	Pause       time.Duration
	Deadline    time.Duration
	Description bool
}

type RefreshConfig struct {
	Interval time.Duration
	OnEmpty  bool
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type Config struct {
	Server   ServerConfig
	Primary  PrimaryConfig
	Catalogs []CatalogConfig
	Visual   VisualConfig
	Meta     MetaConfig
	Store    StoreConfig
	Enrich   EnrichConfig
	Refresh  RefreshConfig
	Logging  LoggingConfig
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "",
			Port:            7002,
			ShutdownTimeout: 10 * time.Second,
		},
		Primary: PrimaryConfig{
			Headers:    map[string]string{},
			Timeout:    10 * time.Second,
			Retries:    2,
			RetryDelay: 500 * time.Millisecond,
		},
		Catalogs: []CatalogConfig{
			{ID: CatalogPopular, Name: "Populares", Type: "series"},
			{ID: CatalogNew, Name: "Lançamentos", Type: "series"},
			{ID: CatalogFav, Name: "Favoritos", Type: "series"},
		},
		Visual: VisualConfig{
			DetailPath: "anime/details",
			Timeout:    2500 * time.Millisecond,
		},
		Meta: MetaConfig{
			CinemetaURL: foreign.DefaultCinemetaURL,
			KitsuURL:    foreign.DefaultKitsuURL,
			Timeout:     5 * time.Second,
		},
		Store: StoreConfig{
			Driver:        "bolt",
			Dir:           defaultStoreDir(),
			FlushInterval: 5 * time.Minute,
		},
		Enrich: EnrichConfig{
			BatchSize:   4,
			Pause:       100 * time.Millisecond,
			Deadline:    8 * time.Second,
			Description: false,
		},
		Refresh: RefreshConfig{
			Interval: time.Hour,
			OnEmpty:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultStoreDir() string {
	return filepath.Join(os.TempDir(), "animecatalog")
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := ini.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := cfg.apply(f); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) apply(f *ini.File) error {
	sec := f.Section("server")
	c.Server.Host = sec.Key("host").MustString(c.Server.Host)
	c.Server.Port = sec.Key("port").MustInt(c.Server.Port)
	c.Server.ShutdownTimeout = sec.Key("shutdown_timeout").MustDuration(c.Server.ShutdownTimeout)

	sec = f.Section("primary")
	c.Primary.BaseURL = sec.Key("base_url").MustString(c.Primary.BaseURL)
	c.Primary.SearchPath = sec.Key("search_path").MustString(c.Primary.SearchPath)
	c.Primary.Timeout = sec.Key("timeout").MustDuration(c.Primary.Timeout)
	c.Primary.Retries = sec.Key("retries").MustInt(c.Primary.Retries)
	c.Primary.RetryDelay = sec.Key("retry_delay").MustDuration(c.Primary.RetryDelay)
	if f.HasSection("primary.headers") {
		for _, k := range f.Section("primary.headers").Keys() {
			c.Primary.Headers[k.Name()] = k.String()
		}
	}

	if err := c.applyCatalogs(f); err != nil {
		return err
	}

	sec = f.Section("visual")
	c.Visual.BaseURL = sec.Key("base_url").MustString(c.Visual.BaseURL)
	c.Visual.DetailPath = sec.Key("detail_path").MustString(c.Visual.DetailPath)
	c.Visual.Timeout = sec.Key("timeout").MustDuration(c.Visual.Timeout)

	sec = f.Section("meta")
	c.Meta.CinemetaURL = sec.Key("cinemeta_url").MustString(c.Meta.CinemetaURL)
	c.Meta.KitsuURL = sec.Key("kitsu_url").MustString(c.Meta.KitsuURL)
	c.Meta.Timeout = sec.Key("timeout").MustDuration(c.Meta.Timeout)

	sec = f.Section("store")
	c.Store.Driver = sec.Key("driver").In(c.Store.Driver, []string{"bolt", "sqlite", "memory"})
	c.Store.Dir = sec.Key("dir").MustString(c.Store.Dir)
	c.Store.FlushInterval = sec.Key("flush_interval").MustDuration(c.Store.FlushInterval)

	sec = f.Section("enrich")
	c.Enrich.BatchSize = sec.Key("batch_size").MustInt(c.Enrich.BatchSize)
	c.Enrich.Pause = sec.Key("pause").MustDuration(c.Enrich.Pause)
	c.Enrich.Deadline = sec.Key("deadline").MustDuration(c.Enrich.Deadline)
	c.Enrich.Description = sec.Key("description").MustBool(c.Enrich.Description)

	sec = f.Section("refresh")
	c.Refresh.Interval = sec.Key("interval").MustDuration(c.Refresh.Interval)
	c.Refresh.OnEmpty = sec.Key("on_empty").MustBool(c.Refresh.OnEmpty)

	sec = f.Section("logging")
	c.Logging.Level = sec.Key("level").MustString(c.Logging.Level)
	c.Logging.File = sec.Key("file").MustString(c.Logging.File)
	c.Logging.MaxSizeMB = sec.Key("max_size_mb").MustInt(c.Logging.MaxSizeMB)
	c.Logging.MaxBackups = sec.Key("max_backups").MustInt(c.Logging.MaxBackups)
	c.Logging.MaxAgeDays = sec.Key("max_age_days").MustInt(c.Logging.MaxAgeDays)
	return nil
}

// applyCatalogs merges [catalog.<id>] sections into the catalog list.
// Known ids are updated in place; new ids are appended in file order.
func (c *Config) applyCatalogs(f *ini.File) error {
	for _, sec := range f.Sections() {
		id, ok := strings.CutPrefix(sec.Name(), "catalog.")
		if !ok {
			continue
		}
		if id == "" || id == CatalogSearch {
			return fmt.Errorf("invalid catalog section %q", sec.Name())
		}
		cat := c.catalog(id)
		if cat == nil {
			c.Catalogs = append(c.Catalogs, CatalogConfig{ID: id, Name: id, Type: "series"})
			cat = &c.Catalogs[len(c.Catalogs)-1]
		}
		cat.Name = sec.Key("name").MustString(cat.Name)
		cat.Type = sec.Key("type").In(cat.Type, []string{"series", "movie"})
		cat.Path = sec.Key("path").MustString(cat.Path)
	}
	return nil
}

func (c *Config) catalog(id string) *CatalogConfig {
	for i := range c.Catalogs {
		if c.Catalogs[i].ID == id {
			return &c.Catalogs[i]
		}
	}
	return nil
}

// Catalog returns the configured catalog with the given id.
func (c Config) Catalog(id string) (CatalogConfig, bool) {
	if cat := c.catalog(id); cat != nil {
		return *cat, true
	}
	return CatalogConfig{}, false
}

// pathEnv names the environment variable that sets each default catalog path.
var pathEnv = map[string]string{
	CatalogPopular: "PATH_LIST_POP",
	CatalogNew:     "PATH_LIST_NEW",
	CatalogFav:     "PATH_LIST_FAV",
}

// applyEnv applies the deployment environment variables, which win over the
// file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v, ok := get("API_HOST_MAIN"); ok {
		c.Primary.BaseURL = v
	}
	if v, ok := get("API_HOST_VISUAL"); ok {
		c.Visual.BaseURL = v
	}
	if v, ok := get("API_HOST_META"); ok {
		c.Meta.CinemetaURL = v
	}
	if v, ok := get("API_HOST_ALT"); ok {
		c.Meta.KitsuURL = v
	}
	if v, ok := get("PATH_SEARCH"); ok {
		c.Primary.SearchPath = v
	}
	for id, env := range pathEnv {
		if v, ok := get(env); ok {
			if cat := c.catalog(id); cat != nil {
				cat.Path = v
			}
		}
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
}

// Missing names the settings without which the service can only serve
// empty results.
func (c Config) Missing() []string {
	var out []string
	if c.Primary.BaseURL == "" {
		out = append(out, "API_HOST_MAIN")
	}
	if c.Visual.BaseURL == "" {
		out = append(out, "API_HOST_VISUAL")
	}
	if c.Primary.SearchPath == "" {
		out = append(out, "PATH_SEARCH")
	}
	for _, cat := range c.Catalogs {
		if cat.Path != "" {
			continue
		}
		if env, ok := pathEnv[cat.ID]; ok {
			out = append(out, env)
		} else {
			out = append(out, "catalog."+cat.ID+".path")
		}
	}
	return out
}
