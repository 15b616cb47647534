// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment variable.
const EnvPrefix = "BLUFF"

// Server holds the settings of the game server binary.
type Server struct {
	Bind    string
	Port    int
	Verbose bool

	TokenTTL       time.Duration
	PrivateKeyPath string
	PublicKeyPath  string

	DisconnectGrace time.Duration
	JudgeTimeout    time.Duration

	GeminiAPIKey string
	GeminiModel  string

	RedisAddr    string
	RedisDB      int
	HistoryQueue string
	DatabaseURL  string

	AllowedOrigins []string
	PublicURL      string
}

// Validate checks cross-field constraints after flags and env are resolved.
func (c *Server) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if (c.PrivateKeyPath == "") != (c.PublicKeyPath == "") {
		return errors.New("both --private-key and --public-key must be provided together")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl: %s", c.TokenTTL)
	}
	if c.DisconnectGrace <= 0 || c.DisconnectGrace > 10*time.Minute {
		return fmt.Errorf("invalid disconnect grace (must be between 0 and 10m): %s", c.DisconnectGrace)
	}
	if c.JudgeTimeout <= 0 {
		return fmt.Errorf("invalid judge timeout: %s", c.JudgeTimeout)
	}
	if c.GeminiAPIKey != "" && c.GeminiModel == "" {
		return errors.New("--gemini-model must not be empty when a Gemini key is set")
	}
	return nil
}

// Addr is the listen address.
func (c *Server) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// JoinURL is the link encoded in a lobby's QR code.
func (c *Server) JoinURL(code string) string {
	base := strings.TrimRight(c.PublicURL, "/")
	if base == "" {
		base = "http://" + c.Addr()
	}
	return base + "/lobby/" + code
}

// Historian holds the settings of the history worker binary.
type Historian struct {
	RedisAddr    string
	RedisDB      int
	HistoryQueue string
	DatabaseURL  string
	BatchSize    int
	FlushDelay   time.Duration
	Verbose      bool
}

// Validate checks the worker settings.
func (c *Historian) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("--database-url is required")
	}
	if c.RedisAddr == "" {
		return errors.New("--redis-addr is required")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch size: %d", c.BatchSize)
	}
	if c.FlushDelay <= 0 {
		return fmt.Errorf("invalid flush delay: %s", c.FlushDelay)
	}
	return nil
}

// NewServerCommand builds the root command of the game server. run is called
// with the validated config.
func NewServerCommand(cfg *Server, version string, run func(cmd *cobra.Command, cfg *Server) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bluff-server",
		Short:   "Two-team steal trivia game server.",
		Args:    cobra.ExactArgs(0),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	normalize(fs)

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: BLUFF_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: BLUFF_PORT)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: BLUFF_VERBOSE)")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", time.Hour, "lifetime of player tokens (env: BLUFF_TOKEN_TTL)")
	fs.StringVar(&cfg.PrivateKeyPath, "private-key", "", "path to raw ed25519 private key; ephemeral when empty (env: BLUFF_PRIVATE_KEY)")
	fs.StringVar(&cfg.PublicKeyPath, "public-key", "", "path to raw ed25519 public key (env: BLUFF_PUBLIC_KEY)")
	fs.DurationVar(&cfg.DisconnectGrace, "disconnect-grace", 30*time.Second, "time a disconnected player keeps their seat (env: BLUFF_DISCONNECT_GRACE)")
	fs.DurationVar(&cfg.JudgeTimeout, "judge-timeout", 10*time.Second, "upper bound on answer judging per round (env: BLUFF_JUDGE_TIMEOUT)")
	fs.StringVar(&cfg.GeminiAPIKey, "gemini-api-key", "", "Gemini API key; the built-in question bank is used when empty (env: BLUFF_GEMINI_API_KEY)")
	fs.StringVar(&cfg.GeminiModel, "gemini-model", "gemini-2.5-flash-lite", "Gemini model for questions and judging (env: BLUFF_GEMINI_MODEL)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the history queue (env: BLUFF_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: BLUFF_REDIS_DB)")
	fs.StringVar(&cfg.HistoryQueue, "history-queue", "bluff_games", "redis list finished games are pushed to (env: BLUFF_HISTORY_QUEUE)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres url; games are written directly when no redis is configured (env: BLUFF_DATABASE_URL)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", []string{"*"}, "CORS and websocket origins (env: BLUFF_ALLOWED_ORIGINS)")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "externally visible base url used in join links (env: BLUFF_PUBLIC_URL)")

	bindEnv(fs)
	finish(cmd)
	return cmd
}

// NewHistorianCommand builds the root command of the history worker.
func NewHistorianCommand(cfg *Historian, version string, run func(cmd *cobra.Command, cfg *Historian) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bluff-historian",
		Short:   "Drains finished games from redis into postgres.",
		Args:    cobra.ExactArgs(0),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()
	normalize(fs)

	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address (env: BLUFF_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database number (env: BLUFF_REDIS_DB)")
	fs.StringVar(&cfg.HistoryQueue, "history-queue", "bluff_games", "redis list to drain (env: BLUFF_HISTORY_QUEUE)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres url (env: BLUFF_DATABASE_URL)")
	fs.IntVar(&cfg.BatchSize, "batch-size", 20, "records per transaction (env: BLUFF_BATCH_SIZE)")
	fs.DurationVar(&cfg.FlushDelay, "flush-delay", 500*time.Millisecond, "max time a record waits before flushing (env: BLUFF_FLUSH_DELAY)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log at debug level (env: BLUFF_VERBOSE)")

	bindEnv(fs)
	finish(cmd)
	return cmd
}

func normalize(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

// bindEnv seeds every flag that was not set on the command line from its
// BLUFF_* environment variable.
func bindEnv(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func finish(cmd *cobra.Command) {
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
}
