package config

type AppConfig struct {
	APIPort           string `env:"PORT,required" envDefault:"12222"`
	APIKey            string `env:"API_KEY,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL"`
	CredentialsSecret string `env:"MAILSYNC_CREDENTIALS_SECRET,required"`
	PodName           string `env:"POD_NAME" envDefault:"local"`
	Namespace         string `env:"POD_NAMESPACE" envDefault:"default"`
	ShutdownTimeout   int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`
	SSEHeartbeat      int    `env:"SSE_HEARTBEAT_SECONDS" envDefault:"25"`
}

type MailsyncDatabaseConfig struct {
	Host            string `env:"MAILSYNC_POSTGRES_HOST,required"`
	Port            string `env:"MAILSYNC_POSTGRES_PORT,required"`
	User            string `env:"MAILSYNC_POSTGRES_USER,required"`
	DBName          string `env:"MAILSYNC_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILSYNC_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILSYNC_POSTGRES_DB_MAX_CONN"`
	MaxIdleConn     int    `env:"MAILSYNC_POSTGRES_DB_MAX_IDLE_CONN"`
	ConnMaxLifetime int    `env:"MAILSYNC_POSTGRES_DB_CONN_MAX_LIFETIME"`
	LogLevel        string `env:"MAILSYNC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSYNC_POSTGRES_SSL_MODE"`
}
