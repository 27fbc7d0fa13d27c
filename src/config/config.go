package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/openrumor/veracity/src/claims"
	"github.com/openrumor/veracity/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultServiceAddr = "127.0.0.1:8000"
	DefaultStore       = false
)

// Config contains all the configuration properties of a Veracity node.
type Config struct {
	// DataDir is the top-level directory containing Veracity configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP API service. The handlers
	// are registered with the DefaultServerMux of the http package, so
	// another server in the same process may expose them on its own
	// endpoint.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// VerifyThreshold is the truth score at or above which a claim locks
	// verified.
	VerifyThreshold float64 `mapstructure:"verify-threshold"`

	// DisputeThreshold is the truth score at or below which a claim locks
	// disputed.
	DisputeThreshold float64 `mapstructure:"dispute-threshold"`

	// MinVotes is the minimum number of votes before a claim may lock.
	MinVotes int `mapstructure:"min-votes"`

	// MinWeight is the minimum accumulated credibility weight before a claim
	// may lock.
	MinWeight float64 `mapstructure:"min-weight"`

	// MinVoteInterval is the minimum delay between two votes by the same
	// identity.
	MinVoteInterval time.Duration `mapstructure:"min-vote-interval"`

	// HourlyVoteLimit caps the votes one identity may cast per rolling hour.
	HourlyVoteLimit int `mapstructure:"hourly-vote-limit"`

	// DailyVoteLimit caps the votes one identity may cast per rolling day.
	DailyVoteLimit int `mapstructure:"daily-vote-limit"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		ServiceAddr:      DefaultServiceAddr,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		VerifyThreshold:  claims.DefaultVerifyThreshold,
		DisputeThreshold: claims.DefaultDisputeThreshold,
		MinVotes:         claims.DefaultMinVotes,
		MinWeight:        claims.DefaultMinWeight,
		MinVoteInterval:  claims.DefaultMinVoteInterval,
		HourlyVoteLimit:  claims.DefaultHourlyVoteLimit,
		DailyVoteLimit:   claims.DefaultDailyVoteLimit,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level Veracity directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// EngineConfig bundles the engine and guard tunables into the form the
// claims package expects.
func (c *Config) EngineConfig() *claims.EngineConfig {
	return &claims.EngineConfig{
		VerifyThreshold:  c.VerifyThreshold,
		DisputeThreshold: c.DisputeThreshold,
		MinVotes:         c.MinVotes,
		MinWeight:        c.MinWeight,
		MinVoteInterval:  c.MinVoteInterval,
		HourlyVoteLimit:  c.HourlyVoteLimit,
		DailyVoteLimit:   c.DailyVoteLimit,
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "veracity".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "veracity")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Veracity
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Veracity")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Veracity")
		} else {
			return filepath.Join(home, ".veracity")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
