package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYaml(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitConfigDefaults(t *testing.T) {
	t.Setenv("TRUSTFUND_JWT_SECRET", "s3cret")
	t.Setenv("TRUSTFUND_PINATA_JWT", "pinata")

	if err := InitConfigFile(writeYaml(t, "net: sepolia\n")); err != nil {
		t.Fatal(err)
	}
	if Cfg.Server.Port != "7290" || Cfg.Database.Type != "pebble" {
		t.Fatalf("defaults not applied: %+v", Cfg)
	}
	if Cfg.Auth.TokenTTL != 7*24*time.Hour || Cfg.Auth.CookieName != "auth_token" {
		t.Fatalf("auth defaults: %+v", Cfg.Auth)
	}
	if Cfg.Vote.QuorumPercentage != 20 || Cfg.Vote.PassPercentage != 60 {
		t.Fatalf("vote defaults: %+v", Cfg.Vote)
	}
	if Cfg.Secrets.JwtSecret != "s3cret" || Cfg.Secrets.PinataJwt != "pinata" {
		t.Fatalf("secrets: %+v", Cfg.Secrets)
	}
}

func TestInitConfigValues(t *testing.T) {
	t.Setenv("TRUSTFUND_JWT_SECRET", "x")
	yaml := `
server:
  port: "9000"
  allow_origins: ["https://a.example"]
database:
  type: sqlite
  dsn: ":memory:"
auth:
  token_ttl: 1h
vote:
  quorum_percentage: 10
  pass_percentage: 50
mirror:
  sweep_spec: "@every 1m"
`
	if err := InitConfigFile(writeYaml(t, yaml)); err != nil {
		t.Fatal(err)
	}
	if Cfg.Server.Port != "9000" || len(Cfg.Server.AllowOrigins) != 1 {
		t.Fatalf("server: %+v", Cfg.Server)
	}
	if Cfg.Auth.TokenTTL != time.Hour || Cfg.Mirror.SweepSpec != "@every 1m" {
		t.Fatalf("got %+v %+v", Cfg.Auth, Cfg.Mirror)
	}
	if Cfg.Vote.QuorumPercentage != 10 || Cfg.Vote.PassPercentage != 50 {
		t.Fatalf("vote: %+v", Cfg.Vote)
	}
}

func TestInitConfigRejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		yaml   string
	}{
		{"missing secret", "", "net: x\n"},
		{"sql without dsn", "x", "database:\n  type: mysql\n"},
		{"unknown db", "x", "database:\n  type: mongo\n"},
		{"bad percentage", "x", "vote:\n  pass_percentage: 120\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TRUSTFUND_JWT_SECRET", tc.secret)
			if err := InitConfigFile(writeYaml(t, tc.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGetYaml(t *testing.T) {
	defer func(e EnvironmentEnum, f string) { SystemEnvironmentEnum, ConfigFile = e, f }(SystemEnvironmentEnum, ConfigFile)

	SystemEnvironmentEnum = TestnetEnvironmentEnum
	ConfigFile = ""
	if got := GetYaml(); got != "./conf/conf_testnet.yaml" {
		t.Fatalf("got %s", got)
	}
	ConfigFile = "/etc/tf.yaml"
	if got := GetYaml(); got != "/etc/tf.yaml" {
		t.Fatalf("got %s", got)
	}
	if _, err := ParseEnvironment("staging"); err == nil {
		t.Fatal("unknown environment accepted")
	}
}
