package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithDefaults_Succeeds(t *testing.T) {
	// Ensure envs are clean to use defaults
	os.Unsetenv("DB_PATH")
	os.Unsetenv("GRPC_ADDRESS")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("FIELDOPS_CONFIG")
	os.Unsetenv("FIELDOPS_SERVER_URL")
	cfg, err := LoadWithDefaults()
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.GRPC.Address == "" || cfg.Database.Path == "" || cfg.Auth.JWTSecret == "" {
		t.Fatalf("unexpected empty defaults: %+v", cfg)
	}
	if cfg.Channel.ReconnectAttempts != 5 || cfg.Client.AuthTimeout != 10*time.Second {
		t.Fatalf("unexpected channel defaults: %+v", cfg.Channel)
	}
	if len(cfg.Channel.Transports) != 2 || cfg.Channel.Transports[0] != "websocket" {
		t.Fatalf("unexpected transport order: %v", cfg.Channel.Transports)
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	os.Unsetenv("JWT_SECRET")
	t.Setenv("DB_PATH", "test.db")
	t.Setenv("GRPC_ADDRESS", ":1234")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when JWT_SECRET is not set")
	}
	t.Setenv("JWT_SECRET", "x")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with secret set: %v", err)
	}
}

func TestLoad_ChannelParametersFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("FIELDOPS_SERVER_URL", "wss://coord.example.com/ws")
	t.Setenv("FIELDOPS_TRANSPORTS", "polling, websocket")
	t.Setenv("FIELDOPS_RECONNECT_ATTEMPTS", "3")
	t.Setenv("FIELDOPS_RECONNECT_DELAY", "1500")
	t.Setenv("FIELDOPS_CONNECT_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.ServerURL != "wss://coord.example.com/ws" {
		t.Fatalf("server url=%s", cfg.Channel.ServerURL)
	}
	if strings.Join(cfg.Channel.Transports, ",") != "polling,websocket" {
		t.Fatalf("transports=%v", cfg.Channel.Transports)
	}
	if cfg.Channel.ReconnectAttempts != 3 || cfg.Channel.ReconnectDelay != 1500*time.Millisecond || cfg.Channel.ConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected channel config: %+v", cfg.Channel)
	}

	t.Setenv("FIELDOPS_RECONNECT_ATTEMPTS", "many")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid integer")
	}
}

func TestLoad_YAMLFileWithEnvSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldops.yml")
	body := `
channel:
  server_url: ws://${COORD_HOST:-fallback}:9000/ws
  transports: [websocket]
  reconnect_attempts: 2
client:
  auth_timeout: 20s
database:
  path: ${DATA_DIR}/coord.db
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	os.Unsetenv("COORD_HOST")
	os.Unsetenv("FIELDOPS_SERVER_URL")
	os.Unsetenv("FIELDOPS_TRANSPORTS")
	os.Unsetenv("FIELDOPS_RECONNECT_ATTEMPTS")
	os.Unsetenv("DB_PATH")
	t.Setenv("DATA_DIR", "/var/lib/fieldops")
	t.Setenv("FIELDOPS_CONFIG", path)
	t.Setenv("JWT_SECRET", "x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.ServerURL != "ws://fallback:9000/ws" {
		t.Fatalf("default substitution not applied: %s", cfg.Channel.ServerURL)
	}
	if cfg.Database.Path != "/var/lib/fieldops/coord.db" {
		t.Fatalf("env substitution not applied: %s", cfg.Database.Path)
	}
	if cfg.Client.AuthTimeout != 20*time.Second || cfg.Channel.ReconnectAttempts != 2 {
		t.Fatalf("yaml values not applied: %+v %+v", cfg.Client, cfg.Channel)
	}
	// Values absent from the file keep their defaults.
	if cfg.Client.FetchTimeout != 10*time.Second {
		t.Fatalf("fetch timeout default lost: %v", cfg.Client.FetchTimeout)
	}

	// Environment wins over the file.
	t.Setenv("FIELDOPS_RECONNECT_ATTEMPTS", "7")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channel.ReconnectAttempts != 7 {
		t.Fatalf("env override lost: %d", cfg.Channel.ReconnectAttempts)
	}
}

func TestValidate_RejectsUnknownTransport(t *testing.T) {
	cfg := Defaults()
	cfg.Channel.Transports = []string{"carrier-pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
}

func TestString_MasksSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "super-secret"
	if strings.Contains(cfg.String(), "super-secret") {
		t.Fatalf("secret leaked: %s", cfg.String())
	}
}
