package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/learning152/ui-tars-launcher/internal/command"
	"github.com/learning152/ui-tars-launcher/internal/logger"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "launcher.toml")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if c.Agent.Binary != command.DefaultAgent {
		t.Fatalf("agent binary: %q", c.Agent.Binary)
	}
	if c.Server.Listen != "127.0.0.1:8787" || c.Server.BasePath != "/api" {
		t.Fatalf("server defaults: %+v", c.Server)
	}
	if c.Process.WaitDelay != 3*time.Second {
		t.Fatalf("wait delay: %s", c.Process.WaitDelay)
	}
	if !c.Browser.AutoOpen || !c.UseOSEnv || c.Metrics.Enabled {
		t.Fatalf("unexpected toggles %+v", c)
	}
	if c.Log.Slog.Level != logger.LevelInfo || c.Log.File.MaxSizeMB != logger.DefaultMaxSizeMB {
		t.Fatalf("log defaults: %+v", c.Log)
	}
	if c.ProfilesPath() != filepath.Join(c.DataDir, ProfilesFile) {
		t.Fatalf("profiles path: %q", c.ProfilesPath())
	}
	if c.ScriptDir() != filepath.Join(c.DataDir, "scripts") {
		t.Fatalf("script dir: %q", c.ScriptDir())
	}
}

func TestLoadFull(t *testing.T) {
	data := `
data_dir = "/var/lib/tars"
env = ["A=1"]
use_os_env = false

[agent]
binary = "/opt/agent-tars"
shell = "posix"

[console]
encoding = "gbk"

[browser]
auto_open = false

[process]
wait_delay = "500ms"
script_dir = "/tmp/scripts"

[server]
listen = ":9000"
base_path = "/v1"

[log]
level = "debug"
format = "json"
process_dir = "/var/log/tars"
max_backups = 9

[history]
dsn = ["sqlite:///var/lib/tars/history.db", "opensearch://localhost:9200/runs"]

[metrics]
enabled = true
`
	c, err := Load(writeConfig(t, data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DataDir != "/var/lib/tars" || c.UseOSEnv {
		t.Fatalf("top-level: %+v", c)
	}
	opts := c.CommandOptions()
	if opts.Shell != command.ShellPOSIX || opts.Agent != "/opt/agent-tars" {
		t.Fatalf("command options: %+v", opts)
	}
	if c.Console.Encoding != "gbk" || c.Browser.AutoOpen {
		t.Fatalf("console/browser: %+v %+v", c.Console, c.Browser)
	}
	if c.Process.WaitDelay != 500*time.Millisecond || c.ScriptDir() != "/tmp/scripts" {
		t.Fatalf("process: %+v", c.Process)
	}
	if c.Server.Listen != ":9000" || c.Server.BasePath != "/v1" {
		t.Fatalf("server: %+v", c.Server)
	}
	if c.Log.Slog.Level != logger.LevelDebug || c.Log.Slog.Format != logger.FormatJSON {
		t.Fatalf("slog: %+v", c.Log.Slog)
	}
	if c.Log.File.Dir != "/var/log/tars" || c.Log.File.MaxBackups != 9 || c.Log.File.MaxAgeDays != logger.DefaultMaxAgeDays {
		t.Fatalf("file log: %+v", c.Log.File)
	}
	if len(c.History.DSN) != 2 || !c.Metrics.Enabled {
		t.Fatalf("history/metrics: %+v %+v", c.History, c.Metrics)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TARS_LAUNCHER_SERVER_LISTEN", "0.0.0.0:7000")
	t.Setenv("TARS_LAUNCHER_BROWSER_AUTO_OPEN", "false")
	c, err := Load(writeConfig(t, "[server]\nlisten = \":9000\"\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Listen != "0.0.0.0:7000" {
		t.Fatalf("env should override file, got %q", c.Server.Listen)
	}
	if c.Browser.AutoOpen {
		t.Fatalf("env should disable auto open")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "[agent\nbinary=")); err == nil {
		t.Fatalf("expected parse error")
	}
	_, err := Load(writeConfig(t, "[agent]\nshell = \"fish\"\n"))
	if err == nil || !strings.Contains(err.Error(), "agent.shell") {
		t.Fatalf("expected shell error, got %v", err)
	}
	_, err = Load(writeConfig(t, "[server]\nbase_path = \"api\"\n"))
	if err == nil || !strings.Contains(err.Error(), "base_path") {
		t.Fatalf("expected base path error, got %v", err)
	}
}

func TestChildEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("FILE_ONLY=fv\n#comment\nSHARED=file\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	data := "" +
		"use_os_env = false\n" +
		"env_files = [\"" + filepath.ToSlash(dotenv) + "\"]\n" +
		"env = [\"SHARED=top\", \"CHAIN=${FILE_ONLY}-x\"]\n"
	c, err := Load(writeConfig(t, data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e, err := c.ChildEnv()
	if err != nil {
		t.Fatalf("child env: %v", err)
	}
	got := strings.Join(e.Merge(nil), ",")
	want := "CHAIN=fv-x,FILE_ONLY=fv,SHARED=top"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if _, err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatalf("expected error")
	}
}
