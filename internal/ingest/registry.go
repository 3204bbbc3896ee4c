package ingest

import (
	"embed"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed config/feeds.yaml
var feedsYAML embed.FS

const (
	DefaultFeedTimeout = 120 * time.Second
	DefaultUserAgent   = "PLACE-Licitaciones/1.0"
	DefaultAccept      = "application/atom+xml, application/xml, text/xml"
)

// Registry holds the configuration for all syndicated feeds.
type Registry struct {
	Feeds []FeedConfig `yaml:"feeds"`
}

// FetchConfig defines HTTP fetching configuration for a feed.
type FetchConfig struct {
	TimeoutSeconds  int    `yaml:"timeout_seconds,omitempty"` // Default: 120
	MaxRetries      int    `yaml:"max_retries,omitempty"`
	UserAgent       string `yaml:"user_agent,omitempty"`
	Accept          string `yaml:"accept,omitempty"`
	Transport       string `yaml:"transport,omitempty"` // "http" (default) or "colly"
	ProxyURL        string `yaml:"proxy_url,omitempty"`
	IgnoreRobotsTxt bool   `yaml:"ignore_robots_txt,omitempty"`
}

func (c FetchConfig) withDefaults() FetchConfig {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(DefaultFeedTimeout / time.Second)
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Accept == "" {
		c.Accept = DefaultAccept
	}
	if c.Transport == "" {
		c.Transport = "http"
	}
	return c
}

// Timeout is the deadline for downloading one feed page.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.withDefaults().TimeoutSeconds) * time.Second
}

// FeedConfig defines a single ATOM feed to synchronize.
type FeedConfig struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	URL         string      `yaml:"url"`
	DefaultURL  string      `yaml:"default_url,omitempty"` // used when url expands to ""
	Description string      `yaml:"description,omitempty"`
	MaxPages    int         `yaml:"max_pages,omitempty"` // rel="next" pages to follow, default 1
	Fetch       FetchConfig `yaml:"fetch,omitempty"`
}

// LoadRegistry reads the feed registry at path, or the embedded feeds.yaml
// when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = feedsYAML.ReadFile("config/feeds.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read feed registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a feeds document, expanding ${VAR} references.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse feed registry: %w", err)
	}
	for i := range reg.Feeds {
		f := &reg.Feeds[i]
		if f.URL == "" {
			f.URL = f.DefaultURL
		}
		if f.MaxPages <= 0 {
			f.MaxPages = 1
		}
		f.Fetch = f.Fetch.withDefaults()
	}
	return &reg, nil
}

// Feed returns the feed with the given id.
func (r *Registry) Feed(id string) (FeedConfig, error) {
	for _, f := range r.Feeds {
		if f.ID == id {
			return f, nil
		}
	}
	return FeedConfig{}, fmt.Errorf("feed not found: %s", id)
}

// NewFetcher returns the transport configured for a feed.
func NewFetcher(config FetchConfig, logger *logrus.Logger) Fetcher {
	if config.withDefaults().Transport == "colly" {
		return NewCollyFetcher(config, logger)
	}
	return NewHTTPFetcher(config)
}
