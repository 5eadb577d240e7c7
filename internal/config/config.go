// Package config holds the settings shared by the musicquiz binaries.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/musicquiz/internal/lobby"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment variable.
const EnvPrefix = "QUIZ"

const (
	CatalogEmbedded = "embedded"
	CatalogDir      = "dir"
	CatalogPostgres = "postgres"
)

type Config struct {
	Bind     string
	Port     int
	LogLevel string
	Strict   bool

	ReviewDelay      time.Duration
	PointsPerCorrect int
	MinRoundSeconds  int
	MaxRoundSeconds  int
	MaxRounds        int
	LateJoinScoring  bool
	OutboxSize       int

	Catalog    string
	CatalogDir string

	RedisAddr    string
	RedisDB      int
	HistoryQueue string

	DatabaseURL string

	AdminSecret   string
	AdminTokenTTL time.Duration
	PublicURL     string

	HistorianBatchSize  int
	HistorianFlush      time.Duration
	HistorianInactivity time.Duration
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	opts := lobby.DefaultOptions()
	return Config{
		Bind:                "0.0.0.0",
		Port:                8080,
		LogLevel:            "debug",
		ReviewDelay:         opts.ReviewDelay,
		PointsPerCorrect:    opts.PointsPerCorrect,
		MinRoundSeconds:     opts.MinRoundSeconds,
		MaxRoundSeconds:     opts.MaxRoundSeconds,
		MaxRounds:           opts.MaxRounds,
		LateJoinScoring:     opts.LateJoinScoring,
		OutboxSize:          32,
		Catalog:             CatalogEmbedded,
		HistoryQueue:        "musicquiz_match_events",
		AdminTokenTTL:       24 * time.Hour,
		HistorianBatchSize:  20,
		HistorianFlush:      500 * time.Millisecond,
		HistorianInactivity: 10 * time.Minute,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.MinRoundSeconds < 1 || c.MaxRoundSeconds < c.MinRoundSeconds {
		errs = append(errs, fmt.Errorf("invalid round duration bounds %d..%d", c.MinRoundSeconds, c.MaxRoundSeconds))
	}
	if c.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max rounds must be positive: %d", c.MaxRounds))
	}
	if c.PointsPerCorrect < 1 {
		errs = append(errs, fmt.Errorf("points per correct answer must be positive: %d", c.PointsPerCorrect))
	}
	if c.ReviewDelay <= 0 {
		errs = append(errs, fmt.Errorf("review delay must be positive: %s", c.ReviewDelay))
	}
	if c.OutboxSize < 1 {
		errs = append(errs, fmt.Errorf("outbox size must be positive: %d", c.OutboxSize))
	}
	switch c.Catalog {
	case CatalogEmbedded:
	case CatalogDir:
		if c.CatalogDir == "" {
			errs = append(errs, errors.New("--catalog-dir is required with --catalog=dir"))
		}
	case CatalogPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("--database-url is required with --catalog=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog %q", c.Catalog))
	}
	return errors.Join(errs...)
}

// Addr is the host:port the HTTP server listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Level parses LogLevel, falling back to debug.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return lvl
}

// LobbyOptions converts the game rules into lobby options.
func (c Config) LobbyOptions() lobby.Options {
	opts := lobby.DefaultOptions()
	opts.ReviewDelay = c.ReviewDelay
	opts.PointsPerCorrect = c.PointsPerCorrect
	opts.MinRoundSeconds = c.MinRoundSeconds
	opts.MaxRoundSeconds = c.MaxRoundSeconds
	opts.MaxRounds = c.MaxRounds
	opts.LateJoinScoring = c.LateJoinScoring
	opts.Strict = c.Strict
	return opts
}

// RegisterServerFlags adds the flags of the game server to fs, using the current values of c as defaults.
func RegisterServerFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVarP(&c.Bind, "bind", "b", c.Bind, "address to bind to (env: QUIZ_BIND)")
	fs.IntVarP(&c.Port, "port", "p", c.Port, "port to listen on (env: QUIZ_PORT, PORT)")
	fs.BoolVar(&c.Strict, "strict", c.Strict, "panic on internal invariant violations (env: QUIZ_STRICT)")
	fs.DurationVar(&c.ReviewDelay, "review-delay", c.ReviewDelay, "pause between rounds (env: QUIZ_REVIEW_DELAY)")
	fs.IntVar(&c.PointsPerCorrect, "points-per-correct", c.PointsPerCorrect, "points for a correct answer (env: QUIZ_POINTS_PER_CORRECT)")
	fs.IntVar(&c.MinRoundSeconds, "min-round-duration", c.MinRoundSeconds, "shortest round a host may pick, in seconds (env: QUIZ_MIN_ROUND_DURATION)")
	fs.IntVar(&c.MaxRoundSeconds, "max-round-duration", c.MaxRoundSeconds, "longest round a host may pick, in seconds (env: QUIZ_MAX_ROUND_DURATION)")
	fs.IntVar(&c.MaxRounds, "max-rounds", c.MaxRounds, "most rounds a host may pick (env: QUIZ_MAX_ROUNDS)")
	fs.BoolVar(&c.LateJoinScoring, "late-join-scoring", c.LateJoinScoring, "let players who join mid-round answer it (env: QUIZ_LATE_JOIN_SCORING)")
	fs.IntVar(&c.OutboxSize, "outbox-size", c.OutboxSize, "buffered messages per connection before dropping (env: QUIZ_OUTBOX_SIZE)")
	fs.StringVar(&c.Catalog, "catalog", c.Catalog, "clue catalog: embedded, dir or postgres (env: QUIZ_CATALOG)")
	fs.StringVar(&c.CatalogDir, "catalog-dir", c.CatalogDir, "directory of <source>.json files for --catalog=dir (env: QUIZ_CATALOG_DIR)")
	fs.StringVar(&c.AdminSecret, "admin-secret", c.AdminSecret, "HMAC secret for admin tokens; empty disables /admin (env: QUIZ_ADMIN_SECRET)")
	fs.DurationVar(&c.AdminTokenTTL, "admin-token-ttl", c.AdminTokenTTL, "lifetime of minted admin tokens, 0 for none (env: QUIZ_ADMIN_TOKEN_TTL)")
	fs.StringVar(&c.PublicURL, "public-url", c.PublicURL, "base URL encoded in join QR codes (env: QUIZ_PUBLIC_URL)")
}

// RegisterStorageFlags adds the flags shared by every binary that talks to Redis or Postgres.
func RegisterStorageFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (env: QUIZ_LOG_LEVEL)")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for match history; empty disables it (env: QUIZ_REDIS_ADDR, REDIS_ADDR)")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database index (env: QUIZ_REDIS_DB, REDIS_DB)")
	fs.StringVar(&c.HistoryQueue, "history-queue", c.HistoryQueue, "Redis list holding match events (env: QUIZ_HISTORY_QUEUE)")
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL connection string (env: QUIZ_DATABASE_URL, DATABASE_URL)")
}

// RegisterHistorianFlags adds the batching flags of the historian worker.
func RegisterHistorianFlags(fs *pflag.FlagSet, c *Config) {
	fs.IntVar(&c.HistorianBatchSize, "batch-size", c.HistorianBatchSize, "events per database flush (env: QUIZ_BATCH_SIZE)")
	fs.DurationVar(&c.HistorianFlush, "flush-interval", c.HistorianFlush, "maximum time events wait before a flush (env: QUIZ_FLUSH_INTERVAL)")
	fs.DurationVar(&c.HistorianInactivity, "inactivity", c.HistorianInactivity, "idle time after which a match is marked abandoned (env: QUIZ_INACTIVITY)")
}

// Bind lets environment variables fill every flag the command line did not set. Each flag is read
// from QUIZ_<NAME> and, as a fallback, the bare <NAME>.
func Bind(fs *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		env := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name, EnvPrefix+"_"+env, env)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}
