package gazecaptcha

import (
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/session"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/verify"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultQuestion is shown when a challenge was stored without one.
const DefaultQuestion = "Answer the question about the video."

type Config struct {
	DBPath            string
	DBDriver          string
	DBDSN             string
	Logger            Logger
	Storage           Storage
	SQLLogger         gormlogger.Interface
	Matcher           verify.Params
	ToggleRadius      float64
	Precision         int
	Seed              uint64
	VideoPathPrefix   string
	PersistRecordings bool
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithDriver selects "sqlite" (dsn is a file path) or "postgres" (dsn is a connection string).
func WithDriver(driver, dsn string) Option {
	return func(c *Config) {
		c.DBDriver = driver
		c.DBDSN = dsn
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(storage Storage) Option {
	return func(c *Config) {
		c.Storage = storage
	}
}

// WithSQLLogger routes gorm's query log to l when the service opens its own storage.
func WithSQLLogger(l gormlogger.Interface) Option {
	return func(c *Config) {
		c.SQLLogger = l
	}
}

func WithMatcherParams(p verify.Params) Option {
	return func(c *Config) {
		c.Matcher = p
	}
}

func WithToggleRadius(r float64) Option {
	return func(c *Config) {
		c.ToggleRadius = r
	}
}

func WithPrecision(prec int) Option {
	return func(c *Config) {
		c.Precision = prec
	}
}

// WithSeed makes the challenge pool order reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithVideoPathPrefix sets the path the page uses to fetch a challenge video.
func WithVideoPathPrefix(prefix string) Option {
	return func(c *Config) {
		c.VideoPathPrefix = prefix
	}
}

func WithPersistRecordings(persist bool) Option {
	return func(c *Config) {
		c.PersistRecordings = persist
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:            "gazecaptcha.sqlite3",
		DBDriver:          "sqlite",
		Matcher:           verify.DefaultParams(),
		ToggleRadius:      session.DefaultToggleRadius,
		Precision:         session.DefaultPrecision,
		VideoPathPrefix:   "/api/video/",
		PersistRecordings: true,
	}
}
