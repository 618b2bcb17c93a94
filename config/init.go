package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/inboundly/mailcore/internal/logger"
	"github.com/inboundly/mailcore/internal/tracing"
)

type Config struct {
	AppConfig              *AppConfig
	Logger                 *logger.Config
	Tracing                *tracing.JaegerConfig
	MailcoreDatabaseConfig *MailcoreDatabaseConfig
	R2StorageConfig        *R2StorageConfig
	ThreadingConfig        *ThreadingConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:              &AppConfig{},
		Logger:                 &logger.Config{},
		Tracing:                &tracing.JaegerConfig{},
		MailcoreDatabaseConfig: &MailcoreDatabaseConfig{},
		R2StorageConfig:        &R2StorageConfig{},
		ThreadingConfig:        &ThreadingConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailcore config: %v", err)
	}

	return config, nil
}
