package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rescale/photoup/internal/config"
)

// TestConfigPath tests the config path command
func TestConfigPath(t *testing.T) {
	cmd := newConfigPathCmd()
	if cmd == nil {
		t.Fatal("newConfigPathCmd() returned nil")
	}

	if cmd.Use != "path" {
		t.Errorf("Expected Use='path', got '%s'", cmd.Use)
	}

	if cmd.Short == "" {
		t.Error("Short description is empty")
	}
}

// TestConfigShow tests the config show command
func TestConfigShow(t *testing.T) {
	cmd := newConfigShowCmd()
	if cmd == nil {
		t.Fatal("newConfigShowCmd() returned nil")
	}

	if cmd.Use != "show" {
		t.Errorf("Expected Use='show', got '%s'", cmd.Use)
	}

	if cmd.RunE == nil {
		t.Error("RunE function is nil")
	}
}

// TestConfigInit tests the config init command structure
func TestConfigInit(t *testing.T) {
	cmd := newConfigInitCmd()
	if cmd == nil {
		t.Fatal("newConfigInitCmd() returned nil")
	}

	if cmd.Use != "init" {
		t.Errorf("Expected Use='init', got '%s'", cmd.Use)
	}

	if cmd.Flags().Lookup("force") == nil {
		t.Error("--force flag not found")
	}
}

// TestConfigCmd tests the config command group
func TestConfigCmd(t *testing.T) {
	cmd := newConfigCmd()

	expectedSubs := []string{"init", "show", "test", "path"}
	subcommands := cmd.Commands()
	if len(subcommands) != len(expectedSubs) {
		t.Errorf("Expected %d subcommands, got %d", len(expectedSubs), len(subcommands))
	}

	found := make(map[string]bool)
	for _, sub := range subcommands {
		found[sub.Name()] = true
	}
	for _, expected := range expectedSubs {
		if !found[expected] {
			t.Errorf("Subcommand '%s' not found", expected)
		}
	}
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	for _, name := range []string{"upload", "encode", "list", "search", "config", "completion"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "store-url", "api-token", "verbose", "debug"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}

	upload, _, _ := root.Find([]string{"upload"})
	for _, flag := range []string{"concurrency", "retry", "yes", "notify", "dry-run", "rename-duplicates", "include", "exclude", "path-include", "hidden"} {
		if upload.Flags().Lookup(flag) == nil {
			t.Errorf("upload flag --%s missing", flag)
		}
	}
}

func TestRunConfigInit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name:  "http defaults",
			input: "\n\n\n\n\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.BackendName() != config.BackendHTTP {
					t.Errorf("backend = %q", cfg.BackendName())
				}
				if cfg.Store.BaseURL != "http://localhost:3000" {
					t.Errorf("base url = %q", cfg.Store.BaseURL)
				}
				if cfg.Upload.Concurrency != 4 {
					t.Errorf("concurrency = %d", cfg.Upload.Concurrency)
				}
				if cfg.Notify.Enabled {
					t.Error("notifications should default to off")
				}
			},
		},
		{
			name:  "s3 re-asks for bad backend and bucket",
			input: "ftp\ns3\n\nphotos\neu-west-1\nuploads\n\n40\n8\ny\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.BackendName() != config.BackendS3 {
					t.Errorf("backend = %q", cfg.BackendName())
				}
				if cfg.S3.Bucket != "photos" || cfg.S3.Region != "eu-west-1" || cfg.S3.Prefix != "uploads" {
					t.Errorf("s3 = %+v", cfg.S3)
				}
				if cfg.Upload.Concurrency != 8 {
					t.Errorf("concurrency = %d", cfg.Upload.Concurrency)
				}
				if !cfg.Notify.Enabled {
					t.Error("notifications should be on")
				}
			},
		},
		{
			name:  "azure",
			input: "azure\nhttps://acct.blob.core.windows.net/photos?sig=x\n\n2\nn\n",
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Azure.ContainerURL != "https://acct.blob.core.windows.net/photos?sig=x" {
					t.Errorf("container = %q", cfg.Azure.ContainerURL)
				}
				if cfg.Upload.Concurrency != 2 {
					t.Errorf("concurrency = %d", cfg.Upload.Concurrency)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, err := runConfigInit(newPrompter(strings.NewReader(tt.input), &out), &out)
			if err != nil {
				t.Fatalf("runConfigInit() error = %v\noutput:\n%s", err, out.String())
			}
			tt.check(t, cfg)
		})
	}
}

func TestRunConfigInitEOF(t *testing.T) {
	var out bytes.Buffer
	if _, err := runConfigInit(newPrompter(strings.NewReader(""), &out), &out); err == nil {
		t.Error("expected an error when input ends before the first answer")
	}
}

func TestWriteConfigSummaryMasksSecrets(t *testing.T) {
	cfg := config.New()
	cfg.Store.APIToken = "super-secret-token"

	var buf bytes.Buffer
	writeConfigSummary(&buf, cfg)
	if strings.Contains(buf.String(), "super-secret-token") {
		t.Error("API token must never be printed")
	}
	if !strings.Contains(buf.String(), "<set (18 chars)>") {
		t.Errorf("expected masked token, got:\n%s", buf.String())
	}

	cfg.Store.Backend = config.BackendAzure
	cfg.Azure.ContainerURL = "https://acct.blob.core.windows.net/photos?sv=1&sig=abc"
	buf.Reset()
	writeConfigSummary(&buf, cfg)
	if strings.Contains(buf.String(), "sig=abc") {
		t.Error("SAS signature must never be printed")
	}
}
