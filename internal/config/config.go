// Package config loads and holds the processing engine's runtime
// configuration. CLI flag parsing belongs to the entry points in cmd/;
// this package only owns the environment lookup and the
// atomically-swappable global holder.
package config

import (
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// Config is the fully resolved runtime configuration, built once from
// environment variables at process start.
type Config struct {
	DataportalURL string

	StorageServiceURL      string
	StorageServiceUser     string
	StorageServicePassword string

	PidServiceURL string
	IsProduction  bool // PID_SERVICE_TEST_ENV unset => production minting

	FreezeAfterDays      int
	FreezeModelAfterDays int

	DvasPortalURL   string
	DvasAccessToken string
	DvasUsername    string
	DvasPassword    string
	DvasProviderID  string // CLU provider namespace purged by delete_all

	SlackAPIToken  string
	SlackChannelID string

	DataSubmissionUsername string
	DataSubmissionPassword string

	// Client timeouts and retry bounds, not env-configurable.
	HTTPTimeout      time.Duration
	MaxRetries       int
	ChecksumTolerant bool // §4.2: downgrade storage checksum mismatches to warnings
}

// owner holds the process-wide Config behind an atomic.Value, the same
// shape as cmn.GCO: readers call Get(), the (single) writer calls Put()
// once at startup.
type owner struct {
	v atomic.Value
}

var global owner

func init() {
	global.v.Store(defaults())
}

func defaults() *Config {
	return &Config{
		HTTPTimeout:          30 * time.Second,
		MaxRetries:           5,
		ChecksumTolerant:     true,
		FreezeAfterDays:      15,
		FreezeModelAfterDays: 3,
		DvasProviderID:       "CLU",
	}
}

// Get returns the current process-wide configuration.
func Get() *Config { return global.v.Load().(*Config) }

// Put installs a new process-wide configuration, e.g. after LoadFromEnv.
func Put(c *Config) { global.v.Store(c) }

// LoadFromEnv builds a Config from the environment and installs it as
// the global config.
func LoadFromEnv() *Config {
	c := defaults()
	c.DataportalURL = os.Getenv("DATAPORTAL_URL")
	c.StorageServiceURL = os.Getenv("STORAGE_SERVICE_URL")
	c.StorageServiceUser = os.Getenv("STORAGE_SERVICE_USER")
	c.StorageServicePassword = os.Getenv("STORAGE_SERVICE_PASSWORD")
	c.PidServiceURL = os.Getenv("PID_SERVICE_URL")
	c.IsProduction = os.Getenv("PID_SERVICE_TEST_ENV") == ""
	c.DvasPortalURL = os.Getenv("DVAS_PORTAL_URL")
	c.DvasAccessToken = os.Getenv("DVAS_ACCESS_TOKEN")
	c.DvasUsername = os.Getenv("DVAS_USERNAME")
	c.DvasPassword = os.Getenv("DVAS_PASSWORD")
	if v := os.Getenv("DVAS_PROVIDER_ID"); v != "" {
		c.DvasProviderID = v
	}
	c.SlackAPIToken = os.Getenv("SLACK_API_TOKEN")
	c.SlackChannelID = os.Getenv("SLACK_CHANNEL_ID")
	c.DataSubmissionUsername = os.Getenv("DATA_SUBMISSION_USERNAME")
	c.DataSubmissionPassword = os.Getenv("DATA_SUBMISSION_PASSWORD")
	if v := os.Getenv("FREEZE_AFTER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FreezeAfterDays = n
		}
	}
	if v := os.Getenv("FREEZE_MODEL_AFTER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FreezeModelAfterDays = n
		}
	}
	Put(c)
	return c
}

// NewHTTPClient builds a connection-pooled *http.Client honoring the
// config's timeout, shared construction for every outbound client.
func (c *Config) NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: c.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
