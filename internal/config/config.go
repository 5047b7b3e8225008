package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TransitionPair names one (old status -> new status) edge. The notification
// bridge's allow-list is expressed as a slice of these so the push policy is
// plain configuration rather than inline conditionals.
type TransitionPair struct {
	From string
	To   string
}

// Config captures all tunable parameters for the API process. Values are
// loaded from environment variables with defaults that let the binary run
// locally without excessive setup.
type Config struct {
	Port string

	RedisURL string

	// Broker selects the device-push transport: "redis" or "kafka".
	BrokerDriver string
	KafkaBrokers []string

	RequestTimeout time.Duration // deadline for an unclaimed REQUESTED ride
	AcceptTimeout  time.Duration // deadline for an ACCEPTED ride that never starts

	RewardPoints      int
	ReconcileInterval time.Duration

	StorageTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration

	// NotifyTransitions is the allow-list of status edges pushed to passenger
	// devices. REQUESTED and CANCELED edges are deliberately absent from the
	// default set.
	NotifyTransitions []TransitionPair

	LogLevel string
}

func defaultConfig() Config {
	return Config{
		Port:              "8080",
		BrokerDriver:      "redis",
		RequestTimeout:    20 * time.Second,
		AcceptTimeout:     20 * time.Second,
		RewardPoints:      30,
		ReconcileInterval: 10 * time.Minute,
		StorageTimeout:    5 * time.Second,
		RetryAttempts:     3,
		RetryBackoff:      200 * time.Millisecond,
		NotifyTransitions: []TransitionPair{
			{From: "REQUESTED", To: "ACCEPTED"},
			{From: "ACCEPTED", To: "ACTIVE"},
			{From: "ACCEPTED", To: "COMPLETED"},
			{From: "ACTIVE", To: "COMPLETED"},
		},
		LogLevel: "info",
	}
}

// Load builds the process configuration from the environment.
func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.Port, "PORT")
	setStringFromEnv(&cfg.RedisURL, "REDIS_URL")
	setStringFromEnv(&cfg.BrokerDriver, "BROKER_DRIVER")
	setStringFromEnv(&cfg.LogLevel, "LOG_LEVEL")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}

	setDurationFromEnv(&cfg.RequestTimeout, "RIDE_REQUEST_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.AcceptTimeout, "RIDE_ACCEPT_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ReconcileInterval, "LEDGER_RECONCILE_INTERVAL", &errs)
	setDurationFromEnv(&cfg.StorageTimeout, "STORAGE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.RetryBackoff, "STORAGE_RETRY_BACKOFF", &errs)
	setIntFromEnv(&cfg.RewardPoints, "REWARD_POINTS", &errs)
	setIntFromEnv(&cfg.RetryAttempts, "STORAGE_RETRY_ATTEMPTS", &errs)

	if v := os.Getenv("NOTIFY_TRANSITIONS"); v != "" {
		pairs, err := ParseTransitions(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.NotifyTransitions = pairs
		}
	}

	switch cfg.BrokerDriver {
	case "redis", "kafka":
	default:
		errs = append(errs, fmt.Errorf("BROKER_DRIVER must be redis or kafka, got %q", cfg.BrokerDriver))
	}
	if cfg.BrokerDriver == "kafka" && len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS required when BROKER_DRIVER=kafka"))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, errors.New("RIDE_REQUEST_TIMEOUT must be > 0"))
	}
	if cfg.RewardPoints <= 0 {
		errs = append(errs, errors.New("REWARD_POINTS must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ParseTransitions parses a "FROM>TO,FROM>TO" list.
func ParseTransitions(v string) ([]TransitionPair, error) {
	var pairs []TransitionPair
	for _, raw := range splitAndTrim(v) {
		parts := strings.SplitN(raw, ">", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid transition pair %q, want FROM>TO", raw)
		}
		pairs = append(pairs, TransitionPair{
			From: strings.ToUpper(strings.TrimSpace(parts[0])),
			To:   strings.ToUpper(strings.TrimSpace(parts[1])),
		})
	}
	return pairs, nil
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
