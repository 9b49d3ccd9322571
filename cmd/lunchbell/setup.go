package main

import (
	"context"
	"fmt"
	"lunchbell/internal/ports"
	"lunchbell/internal/pub"
	"lunchbell/internal/types"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// loadConfig seeds the environment from ENV_FILE (default .env) and parses it.
func loadConfig() (types.Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Info("The .env file not found.")
	}

	var cfg types.Config
	if err := env.Parse(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg types.Config) {
	level, err := log.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// newSNSClient builds the SNS client. SNSEndpoint points it at a local emulator.
func newSNSClient(ctx context.Context, cfg types.Config) (*sns.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.SNSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SNSEndpoint)
			if o.Region == "" {
				o.Region = "us-east-1"
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
		}
	}), nil
}

// buildNotifiers registers a notifier for every configured channel. Subscribers bound
// to an unconfigured channel show up as send failures.
func buildNotifiers(cfg types.Config, snsPub *pub.SNS) (map[types.Kind]ports.Notifier, error) {
	notifiers := make(map[types.Kind]ports.Notifier, len(types.Kinds))
	if cfg.SMSTopicArn != "" {
		notifiers[types.KindSMS] = snsPub.SMS()
	}
	if cfg.PushPlatformArn != "" {
		notifiers[types.KindPush] = snsPub.Push()
	}
	if cfg.SlackWebhookURL != "" {
		notifiers[types.KindSlack] = pub.NewSlack(cfg.SlackWebhookURL, cfg.SendTimeout)
	}
	if cfg.TelegramToken != "" {
		tg, err := pub.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, err
		}
		notifiers[types.KindTelegram] = tg
	}

	enabled := make([]string, 0, len(notifiers))
	for _, k := range types.Kinds {
		if _, ok := notifiers[k]; ok {
			enabled = append(enabled, k.String())
		}
	}
	log.WithField("channels", enabled).Info("notification channels configured")
	return notifiers, nil
}
