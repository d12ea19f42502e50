// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Addr defines the stub uploader server's listening address (ip:port).
	Addr string

	// StoragePath is the directory for the local key-value store.
	StoragePath string

	// RemoteURL is the base URL of the remote uploader service.
	RemoteURL string

	// QuotaBytes is the soft serialized-size limit per collection.
	QuotaBytes int64

	// MaxBackups caps the rotating local bundle set.
	MaxBackups int

	// MaxRetries bounds upload attempts per sync queue entry.
	MaxRetries int

	// DrainInterval is the periodic sync drain interval while online.
	DrainInterval time.Duration

	// LogRetentionDays is how many days of log records pruning keeps.
	LogRetentionDays int

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Addr, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.StoragePath, "s", "fitvault-data", "local storage directory")
	flag.StringVar(&options.RemoteURL, "url", "http://localhost:8080", "remote uploader base URL")
	flag.Int64Var(&options.QuotaBytes, "quota", 5*1024*1024, "per-collection size quota in bytes")
	flag.IntVar(&options.MaxBackups, "max-backups", 5, "max retained local backup bundles")
	flag.IntVar(&options.MaxRetries, "max-retries", 3, "max upload attempts per queue entry")
	flag.DurationVar(&options.DrainInterval, "drain-interval", 30*time.Second, "sync drain interval")
	flag.IntVar(&options.LogRetentionDays, "log-retention", 90, "days of log records kept by pruning")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if storagePath := os.Getenv("FITVAULT_STORAGE"); storagePath != "" {
		options.StoragePath = storagePath
	}
	if remoteURL := os.Getenv("FITVAULT_REMOTE_URL"); remoteURL != "" {
		options.RemoteURL = remoteURL
	}

	return options
}
