package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treasuryd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "auth:\n  hmac_secret: s3cret\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7080" || cfg.GRPCListenAddress != ":7081" {
		t.Fatalf("unexpected listeners %q %q", cfg.ListenAddress, cfg.GRPCListenAddress)
	}
	if cfg.Mode != ModeSandbox {
		t.Fatalf("expected sandbox mode, got %q", cfg.Mode)
	}
	if cfg.Keeper.Interval.Duration != time.Minute {
		t.Fatalf("unexpected keeper interval %s", cfg.Keeper.Interval)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.DSN == "" {
		t.Fatalf("unexpected journal defaults %+v", cfg.Journal)
	}
	if cfg.RateLimit.PerSecond != 5 || cfg.RateLimit.Burst != 10 {
		t.Fatalf("unexpected rate limit defaults %+v", cfg.RateLimit)
	}
}

func TestLoadParsesKeeperAndRemote(t *testing.T) {
	body := `mode: Remote
auth:
  hmac_secret_env: TREASURYD_TEST_SECRET
keeper:
  enabled: true
  interval: 90s
  address: tz1keeper
  controllers: [maker]
remote:
  oracle_endpoint: http://oracle.local
  injector_endpoint: http://injector.local
  timeout: 3s
  collaborators:
    - address: KT1token
      entrypoints: [approve, transfer, getBalance]
`
	t.Setenv("TREASURYD_TEST_SECRET", "from-env")
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeRemote {
		t.Fatalf("mode not normalised: %q", cfg.Mode)
	}
	if cfg.Auth.Secret() != "from-env" {
		t.Fatalf("expected secret from env, got %q", cfg.Auth.Secret())
	}
	if cfg.Keeper.Interval.Duration != 90*time.Second {
		t.Fatalf("unexpected interval %s", cfg.Keeper.Interval)
	}
	if cfg.Remote.Timeout.Duration != 3*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Remote.Timeout)
	}
	if got := cfg.Remote.Collaborators[0].Entrypoints; len(got) != 3 || got[2] != "getBalance" {
		t.Fatalf("unexpected entrypoints %v", got)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"secret":   {body: "listen: \":1\"\n", want: "auth secret"},
		"mode":     {body: "mode: mainnet\nauth:\n  hmac_secret: x\n", want: "unknown mode"},
		"remote":   {body: "mode: remote\nauth:\n  hmac_secret: x\n", want: "oracle_endpoint"},
		"journal":  {body: "journal:\n  driver: mysql\nauth:\n  hmac_secret: x\n", want: "journal driver"},
		"postgres": {body: "journal:\n  driver: postgres\nauth:\n  hmac_secret: x\n", want: "dsn"},
		"keeper":   {body: "keeper:\n  enabled: true\nauth:\n  hmac_secret: x\n", want: "keeper address"},
		"duration": {body: "keeper:\n  interval: soon\nauth:\n  hmac_secret: x\n", want: "parse duration"},
		"unknown":  {body: "listen_addr: \":1\"\nauth:\n  hmac_secret: x\n", want: "listen_addr"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}
