package main

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

type settings struct {
	Service  string
	HTTPPort string
	GRPCPort string
	LogLevel string

	DatabaseURL      string
	RedisURL         string
	KafkaBrokers     string
	ClinicConfigFile string

	LockWait        time.Duration
	RateLimit       int
	RateWindow      time.Duration
	MaxBodyBytes    int64
	RequestTimeout  time.Duration
	ShutdownGrace   time.Duration
	OutboxPollEvery time.Duration
}

func loadSettings() (settings, error) {
	s := settings{
		Service:          config.String("SERVICE_NAME", "booking-service"),
		LogLevel:         config.String("LOG_LEVEL", "info"),
		DatabaseURL:      config.String("DATABASE_URL", ""),
		RedisURL:         config.String("REDIS_URL", ""),
		KafkaBrokers:     config.String("KAFKA_BROKERS", ""),
		ClinicConfigFile: config.String("CLINIC_CONFIG_FILE", ""),
	}
	var err error
	if s.HTTPPort, err = config.Port("PORT", "8083"); err != nil {
		return settings{}, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9083"); err != nil {
		return settings{}, err
	}
	if s.LockWait, err = config.Duration("BOOKING_LOCK_TIMEOUT", 2*time.Second); err != nil {
		return settings{}, err
	}
	if s.RateLimit, err = config.Int("RATE_LIMIT_PER_WINDOW", 120); err != nil {
		return settings{}, err
	}
	if s.RateWindow, err = config.Duration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return settings{}, err
	}
	maxBody, err := config.Int("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return settings{}, err
	}
	s.MaxBodyBytes = int64(maxBody)
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second); err != nil {
		return settings{}, err
	}
	if s.ShutdownGrace, err = config.Duration("SHUTDOWN_GRACE", 10*time.Second); err != nil {
		return settings{}, err
	}
	if s.OutboxPollEvery, err = config.Duration("OUTBOX_POLL_EVERY", 2*time.Second); err != nil {
		return settings{}, err
	}
	if s.DatabaseURL == "" && s.ClinicConfigFile == "" {
		_, err := config.RequiredString("CLINIC_CONFIG_FILE")
		return settings{}, err
	}
	return s, nil
}
