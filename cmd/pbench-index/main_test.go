package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"pbench/internal/config"
	"pbench/internal/indexer"
	"pbench/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	archive    *testsupport.Archive
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"

	configPath := filepath.Join(filepath.Dir(cfg.Paths.Tmp), "config.toml")
	writeTestConfig(t, configPath, cfg)
	t.Setenv(config.EnvConfigPath, "")

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		archive:    testsupport.NewArchive(t, cfg.Paths.Archive),
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), indexer.ExitCode(err)
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestMissingConfigExitsTwo(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	if _, code := runCLI(t); code != indexer.ExitMissingConfig {
		t.Fatalf("exit code = %d, want %d", code, indexer.ExitMissingConfig)
	}
	if _, code := runCLI(t, "--config", filepath.Join(t.TempDir(), "absent.toml")); code != indexer.ExitMissingConfig {
		t.Fatalf("exit code = %d, want %d", code, indexer.ExitMissingConfig)
	}
}

func TestInvalidConfigExitsThree(t *testing.T) {
	cases := map[string]func(cfg *config.Config){
		"negative batch size": func(cfg *config.Config) { cfg.Indexing.BatchSize = -1 },
		"unknown log format":  func(cfg *config.Config) { cfg.Logging.Format = "xml" },
		"bad index prefix":    func(cfg *config.Config) { cfg.Indexing.Prefix = "Bad_Prefix!" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := setupCLITestEnv(t)
			env.archive.AddTarball(testsupport.DefaultController, "TO-INDEX", "fio-run")
			mutate(env.cfg)
			writeTestConfig(t, env.configPath, env.cfg)
			out, code := runCLI(t, "-C", env.configPath)
			if code != indexer.ExitBadConfig {
				t.Fatalf("exit code = %d, want %d:\n%s", code, indexer.ExitBadConfig, out)
			}
			if got := env.archive.Entries(testsupport.DefaultController, "TO-INDEX"); len(got) != 1 {
				t.Fatalf("TO-INDEX = %v, want the tarball untouched", got)
			}
		})
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv(config.EnvConfigPath, env.configPath)
	out, code := runCLI(t, "--dump-index-patterns")
	if code != indexer.ExitOK {
		t.Fatalf("exit code = %d:\n%s", code, out)
	}
	requireContains(t, out, "pbench.v1.run.*")
}

func TestDumpModesDoNotTouchArchive(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutRoot("archive"))

	out, code := runCLI(t, "-C", env.configPath, "-I")
	if code != indexer.ExitOK {
		t.Fatalf("dump patterns exit code = %d:\n%s", code, out)
	}
	for _, pattern := range []string{"pbench.v1.run.*", "pbench.v1.toc.*", "pbench.v1.tool-data.*", "pbench.v1.server-reports.*"} {
		requireContains(t, out, pattern)
	}

	out, code = runCLI(t, "-C", env.configPath, "--dump-templates")
	if code != indexer.ExitOK {
		t.Fatalf("dump templates exit code = %d:\n%s", code, out)
	}
	requireContains(t, out, `pbench.v1.run: {"index_patterns":["pbench.v1.run.*"]`)
}

func TestIndexRunEndToEnd(t *testing.T) {
	env := setupCLITestEnv(t)
	host := testsupport.DefaultController
	env.archive.AddTarball(host, "TO-INDEX", "fio-run")
	env.archive.AddCorruptTarball(host, "TO-INDEX", "broken")

	if out, code := runCLI(t, "-C", env.configPath); code != indexer.ExitOK {
		t.Fatalf("exit code = %d:\n%s", code, out)
	}
	if got := env.archive.Entries(host, "INDEXED"); len(got) != 1 || got[0] != "fio-run.tar.xz" {
		t.Fatalf("INDEXED = %v", got)
	}
	if got := env.archive.Entries(host, "WONT-INDEX.11"); len(got) != 1 || got[0] != "broken.tar.xz" {
		t.Fatalf("WONT-INDEX.11 = %v", got)
	}

	out, code := runCLI(t, "-C", env.configPath, "states")
	if code != indexer.ExitOK {
		t.Fatalf("states exit code = %d:\n%s", code, out)
	}
	requireContains(t, out, host)
	requireContains(t, out, "INDEXED")
	requireContains(t, out, "11:1")
}

func TestBadArchiveRootExitsThree(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithoutRoot("incoming"))
	if out, code := runCLI(t, "-C", env.configPath); code != indexer.ExitBadConfig {
		t.Fatalf("exit code = %d, want %d:\n%s", code, indexer.ExitBadConfig, out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, code := runCLI(t, "-C", env.configPath, "config", "validate")
	if code != indexer.ExitOK {
		t.Fatalf("config validate exit code = %d:\n%s", code, out)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "pbench-index.toml")
	out, code = runCLI(t, "config", "init", target)
	if code != indexer.ExitOK {
		t.Fatalf("config init exit code = %d:\n%s", code, out)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, code := runCLI(t, "config", "init", target); code == indexer.ExitOK {
		t.Fatal("config init should refuse to overwrite without --overwrite")
	}
	if _, code := runCLI(t, "config", "init", "--overwrite", target); code != indexer.ExitOK {
		t.Fatalf("config init --overwrite exit code = %d", code)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, code := runCLI(t, "-C", env.configPath, "test-notify")
	if code != indexer.ExitOK {
		t.Fatalf("exit code = %d:\n%s", code, out)
	}
	requireContains(t, out, "Notifications disabled")
}
