package types

import (
	"fmt"
	"time"
)

// Config is the process configuration, read from the environment (optionally seeded
// from a .env file).
// SnapshotBackend selects where the registry snapshot lives: file, redis, ddb or sqlite.
// SMSTopicArn is the SNS topic SMS subscribers are attached to; PushPlatformArn is the
// SNS platform application used for browser push endpoints.
// SlackWebhookURL and TelegramToken/TelegramChatID enable the chat channels; a chat
// channel without configuration is simply not registered with the dispatcher.
// MenuURL is the page (or JSON document) holding today's menu, MenuExpr an optional
// JMESPath expression applied when the source is JSON.
// RefreshSchedule is a cron expression evaluated in LunchTZ.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`

	SnapshotBackend string `env:"SNAPSHOT_BACKEND" envDefault:"file"`
	SnapshotPath    string `env:"SNAPSHOT_PATH" envDefault:"subscribers.json"`

	RedisHost  string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort  string `env:"REDIS_PORT" envDefault:"6379"`
	RedisUser  string `env:"REDIS_USER"`
	RedisPass  string `env:"REDIS_PASS"`
	RedisTLS   bool   `env:"REDIS_SSL" envDefault:"false"`
	RedisDBNum int    `env:"REDIS_DB_NUM" envDefault:"0"`
	RedisKey   string `env:"REDIS_KEY" envDefault:"_lunchbell_subscribers"`

	DDBEndpoint string `env:"DDB_ENDPOINT"`
	DDBTable    string `env:"DDB_TABLE" envDefault:"lunchbell"`

	SNSEndpoint     string `env:"SNS_ENDPOINT"`
	SMSTopicArn     string `env:"SMS_TOPIC_ARN"`
	PushPlatformArn string `env:"PUSH_PLATFORM_ARN"`

	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`
	TelegramToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID  int64  `env:"TELEGRAM_CHAT_ID"`

	MenuURL         string        `env:"MENU_URL"`
	MenuExpr        string        `env:"MENU_JMESPATH"`
	MenuTimeout     time.Duration `env:"MENU_TIMEOUT" envDefault:"20s"`
	RefreshSchedule string        `env:"REFRESH_SCHEDULE" envDefault:"0 11 * * 1-5"`
	LunchTZ         string        `env:"LUNCH_TZ" envDefault:"Local"`
	StartupTimeout  time.Duration `env:"STARTUP_TIMEOUT" envDefault:"30s"`

	LunchMessage    string        `env:"LUNCH_MESSAGE" envDefault:"Lunch has arrived!"`
	SendTimeout     time.Duration `env:"SEND_TIMEOUT" envDefault:"10s"`
	DispatchWorkers int           `env:"DISPATCH_WORKERS" envDefault:"8"`
	KeepEmpty       bool          `env:"KEEP_EMPTY_SUBSCRIBERS" envDefault:"false"`
}

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendDDB    = "ddb"
	BackendSQLite = "sqlite"
)

const (
	MinDispatchWorkers = 1
	MaxDispatchWorkers = 256
)

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be within 1..65535")
	}
	if c.MenuURL == "" {
		return fmt.Errorf("menu_url is required")
	}
	if c.RefreshSchedule == "" {
		return fmt.Errorf("refresh_schedule is required")
	}
	if c.DispatchWorkers < MinDispatchWorkers || c.DispatchWorkers > MaxDispatchWorkers {
		return fmt.Errorf("dispatch_workers must be within %d..%d", MinDispatchWorkers, MaxDispatchWorkers)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send_timeout must be positive")
	}
	if c.MenuTimeout <= 0 {
		return fmt.Errorf("menu_timeout must be positive")
	}
	switch c.SnapshotBackend {
	case BackendFile, BackendSQLite:
		if c.SnapshotPath == "" {
			return fmt.Errorf("snapshot_path is required for the %s backend", c.SnapshotBackend)
		}
	case BackendRedis, BackendDDB:
	default:
		return fmt.Errorf("snapshot_backend must be one of file, redis, ddb, sqlite")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("telegram_chat_id is required when telegram_bot_token is set")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("lunch_tz: %w", err)
	}
	return nil
}

// Location resolves LunchTZ.
func (c Config) Location() (*time.Location, error) {
	if c.LunchTZ == "" || c.LunchTZ == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.LunchTZ)
}
