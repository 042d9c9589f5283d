package buildCFG

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
)

type ServerConfig struct {
	Port         string
	Mode         string
	CookieMaxAge int
	SecureCookie bool
}

type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type SessionConfig struct {
	Backend       string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type RabbitConfig struct {
	Enabled  bool
	Url      string
	Exchange string
	Queue    string
}

type MailerConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	sc := ServerConfig{
		Port:         cfg.GetString("server.port"),
		Mode:         cfg.GetString("server.mode"),
		CookieMaxAge: cfg.GetInt("server.cookie_max_age"),
		SecureCookie: cfg.GetBool("server.secure_cookie"),
	}
	if sc.Port == "" {
		sc.Port = "8080"
		log.Warn().Msg("server.port not set, using 8080")
	}
	if sc.Mode == "" {
		sc.Mode = "release"
	}
	if sc.CookieMaxAge == 0 {
		sc.CookieMaxAge = int((30 * 24 * time.Hour).Seconds())
	}
	return sc
}

func BuildAPIConfig(cfg *config.Config, log *zerolog.Logger) (APIConfig, error) {
	ac := APIConfig{
		BaseURL: cfg.GetString("api.base_url"),
		Timeout: cfg.GetDuration("api.timeout"),
	}
	if ac.BaseURL == "" {
		return ac, errors.New("api.base_url is required")
	}
	if ac.Timeout <= 0 {
		ac.Timeout = 15 * time.Second
	}
	log.Info().Str("base_url", ac.BaseURL).Dur("timeout", ac.Timeout).Msg("api client configured")
	return ac, nil
}

func BuildSessionConfig(cfg *config.Config, log *zerolog.Logger) (SessionConfig, error) {
	sc := SessionConfig{
		Backend:       cfg.GetString("session.backend"),
		SQLitePath:    cfg.GetString("session.sqlite_path"),
		RedisAddr:     cfg.GetString("session.redis.addr"),
		RedisPassword: cfg.GetString("session.redis.password"),
		RedisDB:       cfg.GetInt("session.redis.db"),
		TTL:           cfg.GetDuration("session.ttl"),
	}
	if sc.Backend == "" {
		sc.Backend = "memory"
	}
	switch sc.Backend {
	case "memory":
	case "sqlite":
		if sc.SQLitePath == "" {
			return sc, errors.New("session.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		if sc.RedisAddr == "" {
			return sc, errors.New("session.redis.addr is required for the redis backend")
		}
	default:
		return sc, fmt.Errorf("unknown session backend %q", sc.Backend)
	}
	log.Info().Str("backend", sc.Backend).Msg("session store configured")
	return sc, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbitmq.enabled"),
		Url:      cfg.GetString("rabbitmq.url"),
		Exchange: cfg.GetString("rabbitmq.exchange"),
		Queue:    cfg.GetString("rabbitmq.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("registration notices disabled")
		return rc, nil
	}
	if rc.Url == "" || rc.Exchange == "" || rc.Queue == "" {
		return rc, errors.New("rabbitmq.url, rabbitmq.exchange and rabbitmq.queue are required when notices are enabled")
	}
	return rc, nil
}

func BuildMailerConfig(cfg *config.Config, log *zerolog.Logger) (MailerConfig, error) {
	mc := MailerConfig{
		Host:     cfg.GetString("mailer.host"),
		Port:     cfg.GetInt("mailer.port"),
		From:     cfg.GetString("mailer.from"),
		Username: cfg.GetString("mailer.username"),
		Password: cfg.GetString("mailer.password"),
	}
	if mc.Host == "" || mc.From == "" {
		return mc, errors.New("mailer.host and mailer.from are required")
	}
	if mc.Port == 0 {
		mc.Port = 587
	}
	log.Info().Str("host", mc.Host).Int("port", mc.Port).Msg("mailer configured")
	return mc, nil
}
