package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/card-duel-backend/internal/engine"
)

const devSecret = "dev-only-secret-do-not-deploy"

type Config struct {
	Addr           string
	DatabaseURL    string
	AuthSecret     string
	TokenTTL       time.Duration
	LogLevel       string
	LogDev         bool
	StartingTokens int64
	Rules          engine.Rules
}

// Load reads the given .env files (default ".env"; missing files are fine)
// and then the process environment, which wins over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	fileEnv := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, seen := fileEnv[k]; !seen {
				fileEnv[k] = v
			}
		}
	}

	return FromLookup(func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := fileEnv[k]
		return v, ok
	})
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := &reader{lookup: lookup}
	def := engine.DefaultRules()

	cfg := Config{
		Addr:           r.str("ADDR", ":8080"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		AuthSecret:     r.str("AUTH_SECRET", ""),
		TokenTTL:       r.dur("TOKEN_TTL", 30*24*time.Hour),
		LogLevel:       r.str("LOG_LEVEL", "info"),
		LogDev:         r.bool("LOG_DEV", false),
		StartingTokens: r.int64("STARTING_TOKENS", 100),
		Rules: engine.Rules{
			PrepWindow:              r.dur("PREP_WINDOW", def.PrepWindow),
			FirstStepDelay:          r.dur("FIRST_STEP_DELAY", def.FirstStepDelay),
			StepDelay:               r.dur("STEP_DELAY", def.StepDelay),
			ReconnectGrace:          r.dur("RECONNECT_GRACE", def.ReconnectGrace),
			BotThinkDelay:           r.dur("BOT_THINK_DELAY", def.BotThinkDelay),
			RoundsBeforeSuddenDeath: r.int("ROUNDS_BEFORE_SUDDEN_DEATH", def.RoundsBeforeSuddenDeath),
			AFKRoundLimit:           r.int("AFK_ROUND_LIMIT", def.AFKRoundLimit),
			EntryStake:              r.int64("ENTRY_STAKE", def.EntryStake),
			MaxHP:                   r.int("MAX_HP", def.MaxHP),
			StartHP:                 r.int("START_HP", def.StartHP),
			AttackDamage:            r.int("ATTACK_DAMAGE", def.AttackDamage),
			HealAmount:              r.int("HEAL_AMOUNT", def.HealAmount),
			Hand:                    def.Hand,
		},
	}
	if r.errs != nil {
		return Config{}, r.errs
	}

	if cfg.AuthSecret == "" {
		if !cfg.LogDev {
			return Config{}, errors.New("AUTH_SECRET is required unless LOG_DEV is set")
		}
		cfg.AuthSecret = devSecret
	}
	if err := validateRules(cfg.Rules); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateRules(r engine.Rules) error {
	var errs error
	if r.PrepWindow <= 0 {
		errs = multierr.Append(errs, errors.New("PREP_WINDOW must be positive"))
	}
	if r.MaxHP <= 0 || r.StartHP <= 0 || r.StartHP > r.MaxHP {
		errs = multierr.Append(errs, errors.New("START_HP must be in (0, MAX_HP]"))
	}
	if r.RoundsBeforeSuddenDeath < 1 {
		errs = multierr.Append(errs, errors.New("ROUNDS_BEFORE_SUDDEN_DEATH must be at least 1"))
	}
	if r.AFKRoundLimit < 1 {
		errs = multierr.Append(errs, errors.New("AFK_ROUND_LIMIT must be at least 1"))
	}
	if r.EntryStake < 0 || r.AttackDamage < 0 || r.HealAmount < 0 {
		errs = multierr.Append(errs, errors.New("ENTRY_STAKE, ATTACK_DAMAGE and HEAL_AMOUNT must not be negative"))
	}
	return errs
}

type reader struct {
	lookup func(string) (string, bool)
	errs   error
}

func (r *reader) raw(k string) (string, bool) {
	v, ok := r.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(k, def string) string {
	if v, ok := r.raw(k); ok {
		return v
	}
	return def
}

func (r *reader) dur(k string, def time.Duration) time.Duration {
	v, ok := r.raw(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = multierr.Append(r.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func (r *reader) int(k string, def int) int {
	v, ok := r.raw(k)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = multierr.Append(r.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func (r *reader) int64(k string, def int64) int64 {
	v, ok := r.raw(k)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.errs = multierr.Append(r.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func (r *reader) bool(k string, def bool) bool {
	v, ok := r.raw(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	r.errs = multierr.Append(r.errs, fmt.Errorf("%s: not a boolean: %q", k, v))
	return def
}
