package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		JWTSecret:            "secure-secret-at-least-32-chars-long",
		JWTTTLHours:          24,
		DBPassword:           "secure-password",
		DBSSLMode:            "require",
		Port:                 "8080",
		ImageMaxUploadSizeMB: 10,
		BlobBackend:          "disk",
		UploadDir:            "./uploads",
		CleanupHour:          3,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"cleanup hour out of range", func(c *Config) { c.CleanupHour = 24 }, true},
		{"negative cleanup hour", func(c *Config) { c.CleanupHour = -1 }, true},
		{"unknown blob backend", func(c *Config) { c.BlobBackend = "ftp" }, true},
		{"s3 without bucket", func(c *Config) { c.BlobBackend = "s3"; c.S3Endpoint = "minio:9000" }, true},
		{"s3 configured", func(c *Config) {
			c.BlobBackend = "s3"
			c.S3Endpoint = "minio:9000"
			c.S3Bucket = "images"
		}, false},
		{"production default secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "your-secret-key-change-in-production"
		}, true},
		{"production weak db password", func(c *Config) {
			c.Env = "prod"
			c.DBPassword = "password"
		}, true},
		{"production ok", func(c *Config) { c.Env = "production" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CLEANUP_HOUR", "5")
	t.Setenv("BLOB_BACKEND", "disk")
	t.Setenv("UPLOAD_DIR", t.TempDir())

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", c.Env)
	assert.Equal(t, 5, c.CleanupHour)
	assert.Equal(t, 24, c.JWTTTLHours)
	assert.True(t, c.CleanupEnabled)
	assert.False(t, c.IsProduction())
}
