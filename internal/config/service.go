package config

import (
	"github.com/wekeepgrowing/byway-payment/pkg/logger"
)

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	ClientURL   string `yaml:"client_url"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// ZapConfig converts the log section for logger.NewZapLogger.
func (c LogConfig) ZapConfig(svc ServiceConfig) logger.Config {
	return logger.Config{
		Level:       c.Level,
		Format:      c.Format,
		Output:      c.Output,
		FilePath:    c.FilePath,
		Development: svc.Environment == "development",
		Service:     svc.Name,
		Version:     svc.Version,
	}
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type NotificationConfig struct {
	// Channel prefix; notifications go to <channel>:<user id>. Empty logs them only.
	Channel string `yaml:"channel"`
}
