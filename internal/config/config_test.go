package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "GRPC_PORT", "STORE_DRIVER", "DB_PATH", "SESSION_TTL", "EVENT_QUEUE_SIZE", "APP_MANIFEST"} {
		if v, ok := os.LookupEnv(key); ok {
			t.Setenv(key, v)
			os.Unsetenv(key)
		}
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Port)
	}
	if cfg.GRPCPort != "9090" {
		t.Errorf("Expected gRPC port 9090, got %s", cfg.GRPCPort)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("Expected session TTL 30m, got %s", cfg.SessionTTL)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Errorf("Expected store driver sqlite, got %s", cfg.StoreDriver)
	}
	if cfg.EventQueueSize != 32 {
		t.Errorf("Expected queue size 32, got %d", cfg.EventQueueSize)
	}
	if cfg.Manifest == nil || cfg.Manifest.Page.Title != "Interactive Menus Demo" {
		t.Errorf("Expected embedded manifest, got %+v", cfg.Manifest)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("MAX_RERUNS", "4")
	t.Setenv("CACHE_TTL", "not-a-duration")
	t.Setenv("APP_MANIFEST", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Errorf("Expected session TTL 5m, got %s", cfg.SessionTTL)
	}
	if cfg.MaxReruns != 4 {
		t.Errorf("Expected max reruns 4, got %d", cfg.MaxReruns)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("Expected invalid CACHE_TTL to fall back to 10m, got %s", cfg.CacheTTL)
	}
}

func TestLoad_InvalidQueueSize(t *testing.T) {
	t.Setenv("EVENT_QUEUE_SIZE", "0")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "EVENT_QUEUE_SIZE") {
		t.Errorf("Expected EVENT_QUEUE_SIZE error, got %v", err)
	}
}

func TestLoad_InvalidStoreDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") {
		t.Errorf("Expected STORE_DRIVER error, got %v", err)
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://pagelab.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.url}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q): expected %v, got %v", tt.url, tt.want, got)
		}
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := &Config{FrontendURL: "https://a.example.com, https://b.example.com"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Errorf("Unexpected origins: %v", got)
	}
	if got := (&Config{}).AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Errorf("Expected wildcard origin by default, got %v", got)
	}
}

func TestDefaultManifest(t *testing.T) {
	t.Parallel()

	m := DefaultManifest()
	if m.Page.Layout != "wide" {
		t.Errorf("Expected wide layout, got %q", m.Page.Layout)
	}
	if len(m.Nav.Sections) != 4 || m.Nav.Sections[0] != "Home" {
		t.Errorf("Unexpected sections: %v", m.Nav.Sections)
	}
}

func TestLoadManifest_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app.yaml")
	data := `
name: tiny
page:
  title: Tiny
nav:
  sections: [One, Two]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Name != "tiny" || m.Page.Title != "Tiny" || len(m.Nav.Sections) != 2 {
		t.Errorf("Unexpected manifest: %+v", m)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want string
	}{
		{"no title", "name: x\nnav:\n  sections: [A]\n", "title"},
		{"bad layout", "name: x\npage:\n  title: T\n  layout: tall\nnav:\n  sections: [A]\n", "layout"},
		{"no sections", "name: x\npage:\n  title: T\n", "section"},
		{"duplicate section", "name: x\npage:\n  title: T\nnav:\n  sections: [A, A]\n", "duplicate"},
		{"unknown field", "name: x\ncolor: red\n", "color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseManifest([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
