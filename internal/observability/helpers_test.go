package observability

import "github.com/spec-kit/portfolio-admin/internal/config"

func configForTest(level string) (config.LoggerConfig, config.AppConfig) {
	return config.LoggerConfig{Level: level}, config.AppConfig{Name: "portfolio-admin", Env: "test"}
}
