package notifyconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"stagegate/internal/notify/notifyconfig"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := notifyconfig.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	entry, ok := cfg.Lookup("project.stage_changed")
	if !ok {
		t.Fatal("default config missing project.stage_changed")
	}
	if len(entry.StageRoles["feasibility"]) == 0 {
		t.Fatal("stage_changed entry has no feasibility stage roles")
	}
}

func TestLookupMissingEventType(t *testing.T) {
	cfg := notifyconfig.Default()
	if _, ok := cfg.Lookup("project.archived"); ok {
		t.Fatal("lookup of unconfigured event type should miss")
	}
	var nilCfg *notifyconfig.Config
	if _, ok := nilCfg.Lookup("project.created"); ok {
		t.Fatal("nil config should miss every lookup")
	}
}

func TestFromYAMLRejectsBadStageKey(t *testing.T) {
	_, err := notifyconfig.FromYAML([]byte(`events:
  project.stage_changed:
    mailable: stage_changed
    stage_roles:
      shipping: [Ops]
`))
	if err == nil {
		t.Fatal("expected error for unknown stage key")
	}
}

func TestFromYAMLRequiresMailable(t *testing.T) {
	_, err := notifyconfig.FromYAML([]byte(`events:
  project.created:
    roles: [Admin]
`))
	if err == nil {
		t.Fatal("expected error for entry without mailable")
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := notifyconfig.LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != nil {
		t.Fatal("missing file should yield nil config")
	}
}

func TestLoadRoundTripsGeneratedDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagegate.yml")
	if err := os.WriteFile(path, []byte(notifyconfig.GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := notifyconfig.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.Lookup("deployment.service_accepted"); !ok {
		t.Fatal("loaded config missing deployment.service_accepted")
	}
}
