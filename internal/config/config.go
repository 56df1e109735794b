// Package config loads the YAML configuration file and applies environment
// variable overrides.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Version is the engine version reported by get_system_status.
const Version = "2.3.0"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trendradar engine.
type Config struct {
	App       App       `yaml:"app"`
	Storage   Storage   `yaml:"storage"`
	S3        S3        `yaml:"s3"`
	Crawler   Crawler   `yaml:"crawler"`
	Report    Report    `yaml:"report"`
	Keywords  Keywords  `yaml:"keywords"`
	Analytics Analytics `yaml:"analytics"`
	Notify    Notify    `yaml:"notify"`
	Scheduler Scheduler `yaml:"scheduler"`
	Server    Server    `yaml:"server"`

	// RunningInDocker suppresses browser-opening side effects. Set from
	// DOCKER_CONTAINER=true or the presence of /.dockerenv.
	RunningInDocker bool `yaml:"-"`
}

// App holds process-wide settings.
type App struct {
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`
}

// Storage selects and parameterizes the storage backend.
type Storage struct {
	Backend       string `yaml:"backend"` // local | remote
	DataDir       string `yaml:"data_dir"`
	RetentionDays int    `yaml:"retention_days"`
	EnableTXT     bool   `yaml:"enable_txt"`
	EnableHTML    bool   `yaml:"enable_html"`
}

// S3 holds the remote backend credentials and endpoint.
type S3 struct {
	EndpointURL     string `yaml:"endpoint_url"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Region          string `yaml:"region"`
}

// Platform is one hot-board source.
type Platform struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Crawler configures the outbound fetcher.
type Crawler struct {
	APIBase           string     `yaml:"api_base"`
	RequestIntervalMS int        `yaml:"request_interval_ms"`
	UseProxy          bool       `yaml:"use_proxy"`
	ProxyURL          string     `yaml:"proxy_url"`
	Platforms         []Platform `yaml:"platforms"`
}

// Weights are the components of the composite news weight.
type Weights struct {
	Rank      float64 `yaml:"rank"`
	Frequency float64 `yaml:"frequency"`
	Hotness   float64 `yaml:"hotness"`
}

// Report configures the frequency analyzer.
type Report struct {
	Mode              string  `yaml:"mode"` // daily | incremental | current
	RankThreshold     int     `yaml:"rank_threshold"`
	Weights           Weights `yaml:"weights"`
	MaxNewsPerKeyword int     `yaml:"max_news_per_keyword"`
	SortByPosition    bool    `yaml:"sort_by_position"`
}

// Keywords points at the rule file.
type Keywords struct {
	Path string `yaml:"path"`
}

// Sentiment is the lexicon consumed by the sentiment classifier.
type Sentiment struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Entities is the lexicon consumed by entity search.
type Entities struct {
	Persons       []string `yaml:"persons"`
	Places        []string `yaml:"places"`
	Organizations []string `yaml:"organizations"`
}

// Analytics holds the lexicons and tokenizer settings.
type Analytics struct {
	StopWords []string  `yaml:"stop_words"`
	Sentiment Sentiment `yaml:"sentiment"`
	Entities  Entities  `yaml:"entities"`
}

// Notify configures notification channel fan-out limits and credentials.
type Notify struct {
	MaxAccountsPerChannel int               `yaml:"max_accounts_per_channel"`
	Channels              map[string]string `yaml:"channels"`
}

// Scheduler enables periodic crawling inside the server process.
type Scheduler struct {
	Enable    bool   `yaml:"enable"`
	CrawlSpec string `yaml:"crawl_spec"`
}

// Server holds the HTTP transport listener settings.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		App: App{Timezone: "Asia/Shanghai", LogLevel: "info"},
		Storage: Storage{
			Backend:       "local",
			DataDir:       "output",
			RetentionDays: 30,
			EnableTXT:     true,
			EnableHTML:    true,
		},
		Crawler: Crawler{
			APIBase:           "https://newsnow.busiyi.world/api/s",
			RequestIntervalMS: 100,
		},
		Report: Report{
			Mode:          "daily",
			RankThreshold: 3,
			Weights:       Weights{Rank: 0.4, Frequency: 0.3, Hotness: 0.3},
		},
		Keywords: Keywords{Path: "config/frequency_words.txt"},
		Notify:   Notify{MaxAccountsPerChannel: 3},
		Scheduler: Scheduler{
			CrawlSpec: "*/30 * * * *",
		},
		Server: Server{Host: "0.0.0.0", Port: 3333},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, and then applies environment variable overrides. A missing
// file yields the defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STORAGE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.RetentionDays = n
		}
	}

	if v := os.Getenv("S3_ENDPOINT_URL"); v != "" {
		cfg.S3.EndpointURL = v
	}
	if v := os.Getenv("S3_BUCKET_NAME"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3.Region = v
	}

	if v := os.Getenv("FREQUENCY_WORDS_PATH"); v != "" {
		cfg.Keywords.Path = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}

	if os.Getenv("DOCKER_CONTAINER") == "true" {
		cfg.RunningInDocker = true
	} else if _, err := os.Stat("/.dockerenv"); err == nil {
		cfg.RunningInDocker = true
	}
}

// RemoteConfigured reports whether the remote backend has everything it
// needs.
func (c *Config) RemoteConfigured() bool {
	return c.S3.EndpointURL != "" && c.S3.Bucket != "" &&
		c.S3.AccessKeyID != "" && c.S3.SecretAccessKey != ""
}
