package backends

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"lunchbell/internal/backends/ddb"
	"lunchbell/internal/backends/file"
	"lunchbell/internal/backends/sqlite"
	"lunchbell/internal/ports"
	"lunchbell/internal/types"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	redisbackend "lunchbell/internal/backends/redis"
)

const AmazonRootCA1PEM = `-----BEGIN CERTIFICATE-----
MIIDQTCCAimgAwIBAgITBmyfz5m/jAo54vB4ikPmljZbyjANBgkqhkiG9w0BAQsF
ADA5MQswCQYDVQQGEwJVUzEPMA0GA1UEChMGQW1hem9uMRkwFwYDVQQDExBBbWF6
b24gUm9vdCBDQSAxMB4XDTE1MDUyNjAwMDAwMFoXDTM4MDExNzAwMDAwMFowOTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoTBkFtYXpvbjEZMBcGA1UEAxMQQW1hem9uIFJv
b3QgQ0EgMTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEBALJ4gHHKeNXj
ca9HgFB0fW7Y14h29Jlo91ghYPl0hAEvrAIthtOgQ3pOsqTQNroBvo3bSMgHFzZM
9O6II8c+6zf1tRn4SWiw3te5djgdYZ6k/oI2peVKVuRF4fn9tBb6dNqcmzU5L/qw
IFAGbHrQgLKm+a/sRxmPUDgH3KKHOVj4utWp+UhnMJbulHheb4mjUcAwhmahRWa6
VOujw5H5SNz/0egwLX0tdHA114gk957EWW67c4cX8jJGKLhD+rcdqsq08p8kDi1L
93FcXmn/6pUCyziKrlA4b9v7LWIbxcceVOF34GfID5yHI9Y/QCB/IIDEgEw+OyQm
jgSubJrIqg0CAwEAAaNCMEAwDwYDVR0TAQH/BAUwAwEB/zAOBgNVHQ8BAf8EBAMC
AYYwHQYDVR0OBBYEFIQYzIU07LwMlJQuCFmcx7IQTgoIMA0GCSqGSIb3DQEBCwUA
A4IBAQCY8jdaQZChGsV2USggNiMOruYou6r4lK5IpDB/G/wkjUu0yKGX9rbxenDI
U5PMCCjjmCXPI6T53iHTfIUJrU6adTrCC2qJeHZERxhlbI1Bjjt/msv0tadQ1wUs
N+gDS63pYaACbvXy8MWy7Vu33PqUXHeeE6V/Uq2V8viTO96LXFvKWlJbYK8U90vv
o/ufQJVtMVT8QtPHRh8jrdkPSHCa2XV4cdFyQzR1bldZwgJcJmApzyMZFo6IQ6XU
5MsI+yMRQ+hDKXJioaldXgjUkK642M4UwtBV8ob2xJNDd2ZhwLnoQdeXeGADbkpy
rqXRfboQnoZsG4q5WTP468SQvvG5
-----END CERTIFICATE-----`

// SnapshotStoreFromConfig constructs the SnapshotStore selected by cfg.SnapshotBackend.
// Supported backends are "file" (the default), "redis", "ddb" (DynamoDB) and "sqlite".
// The returned close func releases the backend's connections and is never nil.
func SnapshotStoreFromConfig(ctx context.Context, cfg types.Config) (store ports.SnapshotStore, closeFn func() error, err error) {
	closeFn = func() error { return nil }
	switch cfg.SnapshotBackend {
	case types.BackendRedis:
		var redisClient *redis.Client
		redisClient, err = redisClientFromConfig(ctx, cfg)
		if err != nil {
			return nil, closeFn, err
		}
		store = redisbackend.NewSnapshotStore(redisClient, cfg.RedisKey)
		closeFn = redisClient.Close

	case types.BackendDDB:
		var ddbClient *dynamodb.Client
		ddbClient, err = ddbClientFromConfig(ctx, cfg)
		if err != nil {
			return nil, closeFn, err
		}
		var s *ddb.SnapshotStore
		s, err = ddb.NewSnapshotStore(ctx, cfg.DDBTable, ddbClient)
		if err != nil {
			return nil, closeFn, err
		}
		store = s

	case types.BackendSQLite:
		var s *sqlite.SnapshotStore
		s, err = sqlite.Open(cfg.SnapshotPath)
		if err != nil {
			return nil, closeFn, err
		}
		store = s
		closeFn = s.Close

	case types.BackendFile, "":
		store = file.NewSnapshotStore(cfg.SnapshotPath)

	default:
		return nil, closeFn, types.Err(types.ErrInvalidBackend, nil, "unknown snapshot backend %q", cfg.SnapshotBackend)
	}
	return store, closeFn, nil
}

// ddbClientFromConfig creates a DynamoDB client. DDBEndpoint points it at a local
// DynamoDB with static credentials.
func ddbClientFromConfig(ctx context.Context, cfg types.Config) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DDBEndpoint != "" {
			// This is used for testing only locally
			o.BaseEndpoint = aws.String(cfg.DDBEndpoint)
			o.Region = getenv("AWS_REGION", "us-east-1")
			o.Credentials = localCredentials()
		}
	})
	return ddbClient, nil
}

// redisClientFromConfig creates and pings a Redis client.
func redisClientFromConfig(ctx context.Context, cfg types.Config) (*redis.Client, error) {
	var tlsConfig *tls.Config
	if cfg.RedisTLS {
		// Create a CA certificate pool and add our CA certificate
		caCerts := x509.NewCertPool()
		if !caCerts.AppendCertsFromPEM([]byte(AmazonRootCA1PEM)) {
			return nil, fmt.Errorf("failed to retrieve CA certificate")
		}
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    caCerts,
		}
	}

	redisConfig := redis.Options{
		Addr:      fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Username:  cfg.RedisUser,
		Password:  cfg.RedisPass,
		DB:        cfg.RedisDBNum,
		TLSConfig: tlsConfig,
	}
	redisClient := redis.NewClient(&redisConfig)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return redisClient, nil
}

// localCredentials are static credentials for local AWS emulators.
func localCredentials() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(
		getenv("AWS_ACCESS_KEY_ID", "x"),
		getenv("AWS_SECRET_ACCESS_KEY", "x"),
		"",
	)
}

// getenv retrieves the value of the environment variable named by the key.
func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
