package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads; viper treats empty values as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "FIREBASE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_PROJECT_ID",
		"STORE_BACKEND", "DIRECTORY_BACKEND", "ROUTER", "POSTGRES_DSN",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "CUSTOMERS_COLLECTION", "ROLE_CLAIM",
		"PROVISION_MISSING_USERS", "LOG_LEVEL", "LOG_FORMAT",
		"HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, ":9000", cfg.Addr())
	assert.Equal(t, StoreFirestore, cfg.StoreBackend)
	assert.Equal(t, DirectoryFirebase, cfg.DirectoryBackend)
	assert.Equal(t, RouterGin, cfg.Router)
	assert.Equal(t, "customers", cfg.CustomersCollection)
	assert.Equal(t, "role", cfg.RoleClaim)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.False(t, cfg.ProvisionMissingUsers)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.NeedsFirebase())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8081")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("DIRECTORY_BACKEND", "memory")
	t.Setenv("ROUTER", "echo")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PROVISION_MISSING_USERS", "true")
	t.Setenv("HTTP_READ_TIMEOUT", "2s")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, RouterEcho, cfg.Router)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.True(t, cfg.ProvisionMissingUsers)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.False(t, cfg.NeedsFirebase())
}

func TestLoad_CredentialsFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/secrets/adc.json")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/secrets/adc.json", cfg.CredentialsFile)

	t.Setenv("FIREBASE_CREDENTIALS_FILE", "/secrets/firebase.json")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/secrets/firebase.json", cfg.CredentialsFile)
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "METRICS_NAMESPACE"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set in environment", key)
	}
	t.Cleanup(func() { os.Unsetenv(key) })
	clearEnv(t)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=fromfile\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.MetricsNamespace)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"postgres without dsn", map[string]string{"STORE_BACKEND": "postgres"}, "POSTGRES_DSN"},
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"unknown directory", map[string]string{"DIRECTORY_BACKEND": "ldap"}, "DIRECTORY_BACKEND"},
		{"unknown router", map[string]string{"ROUTER": "iris"}, "ROUTER"},
		{"zero timeout", map[string]string{"SHUTDOWN_TIMEOUT": "0s"}, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_PostgresWithDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
}
