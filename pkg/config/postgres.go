package config

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
)

// PostgresSource reads endpoint configuration from a
// resilience_endpoints table, letting a central operations team manage
// endpoint tuning without a redeploy. Its schema mirrors EndpointConfig:
//
//	CREATE TABLE resilience_endpoints (
//	    name                        text PRIMARY KEY,
//	    uri                         text NOT NULL,
//	    timeout_ms                  integer NOT NULL,
//	    failure_threshold           double precision NOT NULL,
//	    failure_sampling_ms         integer NOT NULL,
//	    failure_minimum_throughput  integer NOT NULL,
//	    failure_break_ms            integer NOT NULL,
//	    retries                     integer NOT NULL,
//	    retry_delay_seed_ms         integer NOT NULL,
//	    retry_delay_maximum_ms      integer NOT NULL,
//	    rate_limit                  integer NOT NULL,
//	    rate_limit_period_ms        integer NOT NULL,
//	    isolate                     boolean NOT NULL DEFAULT false
//	);
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource opens a connection pool against dsn (a standard
// "postgres://" connection string) and returns a Source reading from it.
func NewPostgresSource(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("config: open postgres source: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// Load implements config.Source.
func (s *PostgresSource) Load() (Config, error) {
	const query = `
		SELECT name, uri, timeout_ms, failure_threshold, failure_sampling_ms,
		       failure_minimum_throughput, failure_break_ms, retries,
		       retry_delay_seed_ms, retry_delay_maximum_ms, rate_limit,
		       rate_limit_period_ms, isolate
		FROM resilience_endpoints`

	rows, err := s.db.Query(query)
	if err != nil {
		return Config{}, fmt.Errorf("config: query resilience_endpoints: %w", err)
	}
	defer rows.Close()

	cfg := Config{Endpoints: make(map[string]EndpointConfig)}
	for rows.Next() {
		var (
			name                                                                           string
			uri                                                                            string
			timeoutMS, samplingMS, breakMS, seedMS, maxMS, rateLimitPeriodMS               int64
			threshold                                                                      float64
			minThroughput                                                                  uint32
			retries, rateLimit                                                             int
			isolate                                                                        bool
		)
		if err := rows.Scan(&name, &uri, &timeoutMS, &threshold, &samplingMS,
			&minThroughput, &breakMS, &retries, &seedMS, &maxMS, &rateLimit,
			&rateLimitPeriodMS, &isolate); err != nil {
			return Config{}, fmt.Errorf("config: scan resilience_endpoints row: %w", err)
		}

		ec := EndpointConfig{
			Name:                     name,
			URI:                      uri,
			Timeout:                  time.Duration(timeoutMS) * time.Millisecond,
			FailureThreshold:         threshold,
			FailureSamplingDuration:  time.Duration(samplingMS) * time.Millisecond,
			FailureMinimumThroughput: minThroughput,
			FailureBreakDuration:     time.Duration(breakMS) * time.Millisecond,
			Retries:                  retries,
			RetryDelaySeed:           time.Duration(seedMS) * time.Millisecond,
			RetryDelayMaximum:        time.Duration(maxMS) * time.Millisecond,
			RateLimit:                rateLimit,
			RateLimitPeriod:          time.Duration(rateLimitPeriodMS) * time.Millisecond,
			Isolate:                  isolate,
		}
		if err := ec.Validate(); err != nil {
			return Config{}, fmt.Errorf("config: endpoint %s: %w", name, err)
		}
		cfg.Endpoints[name] = ec
	}

	if err := rows.Err(); err != nil {
		return Config{}, fmt.Errorf("config: iterate resilience_endpoints: %w", err)
	}

	return cfg, nil
}
