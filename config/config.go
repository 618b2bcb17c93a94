package config

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	RedisURL    string `env:"REDIS_URL"`
}

type MailcoreDatabaseConfig struct {
	Host            string `env:"MAILCORE_POSTGRES_HOST,required"`
	Port            string `env:"MAILCORE_POSTGRES_PORT,required"`
	User            string `env:"MAILCORE_POSTGRES_USER,required"`
	DBName          string `env:"MAILCORE_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILCORE_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILCORE_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILCORE_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILCORE_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILCORE_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILCORE_POSTGRES_SSL_MODE" envDefault:"require"`
}

type R2StorageConfig struct {
	AccountID       string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	RawEmailBucket  string `env:"BUCKET_NAME_RAW_EMAIL" envDefault:"raw-emails"`
}

type ThreadingConfig struct {
	// SubjectFallback enables the subject + participant-overlap heuristic for
	// messages with no usable reference headers.
	SubjectFallback bool `env:"THREADING_SUBJECT_FALLBACK" envDefault:"false"`
}
