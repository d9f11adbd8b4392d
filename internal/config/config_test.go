package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: 0.0.0.0:9090
auth:
  jwt_secret: s3cret
  allow_actor_header: true
webhooks:
  - url: https://example.test/hook
    secret: hush
    events: [ASSIGNED]
    timeout_seconds: 3
seed_users:
  - id: admin
    email: admin@local.test
    role: ADMIN
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9090" {
		t.Fatalf("addr not applied: %s", cfg.Server.Addr)
	}
	if cfg.Server.BasePath != "/v1" {
		t.Fatalf("default base path lost: %s", cfg.Server.BasePath)
	}
	if cfg.Auth.JWTSecret != "s3cret" || !cfg.Auth.AllowActorHeader {
		t.Fatalf("auth not applied: %+v", cfg.Auth)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Events[0] != "ASSIGNED" {
		t.Fatalf("webhooks not applied: %+v", cfg.Webhooks)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "webhook url required",
			yaml: "webhooks:\n  - secret: x\n",
			want: "webhooks[0].url is required",
		},
		{
			name: "negative timeout",
			yaml: "webhooks:\n  - url: https://x.test\n    timeout_seconds: -1\n",
			want: "timeout_seconds",
		},
		{
			name: "seed email required",
			yaml: "seed_users:\n  - id: a\n    role: ADMIN\n",
			want: "seed_users[0].email is required",
		},
		{
			name: "duplicate seed email",
			yaml: "seed_users:\n  - email: a@x.test\n    role: ADMIN\n  - email: a@x.test\n    role: CUSTOMER\n",
			want: "duplicated",
		},
		{
			name: "invalid role",
			yaml: "seed_users:\n  - email: a@x.test\n    role: ROOT\n",
			want: "role must be ADMIN or CUSTOMER",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	workspace := t.TempDir()
	cfg, err := LoadOptional(workspace)
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected default addr: %s", cfg.Server.Addr)
	}

	if err := os.WriteFile(filepath.Join(workspace, "taskledger.yml"), []byte("server:\n  addr: 127.0.0.1:7777\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7777" {
		t.Fatalf("file not applied: %s", cfg.Server.Addr)
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Load should fail without a config file")
	}

	cfg, err = Load(workspace)
	if err != nil {
		t.Fatalf("load existing file: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7777" {
		t.Fatalf("Load did not apply the file: %s", cfg.Server.Addr)
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	if err := os.WriteFile(path, []byte("auth:\n  dev_login: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("from file: %v", err)
	}
	if !cfg.Auth.DevLogin {
		t.Fatal("dev_login not applied")
	}

	if _, err := FromFile(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("starter config must parse: %v", err)
	}
	if len(cfg.SeedUsers) != 1 || cfg.SeedUsers[0].Role != "ADMIN" {
		t.Fatalf("starter config should seed an admin: %+v", cfg.SeedUsers)
	}
}
