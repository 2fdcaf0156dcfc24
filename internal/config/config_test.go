package config

import (
	"os"
	"path/filepath"
	"testing"

	"clearline/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default("test-project")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Project.ID != "test-project" || cfg.Project.Kind != "clearance-project" {
		t.Fatalf("project header = %+v", cfg.Project)
	}
	for _, stage := range domain.TrackingStageTypes {
		if _, ok := cfg.Stages.LeadTimes[stage]; !ok {
			t.Errorf("no lead time for stage %s", stage)
		}
	}
	for _, category := range domain.Categories {
		if len(cfg.Assignment.Defaults[category]) == 0 {
			t.Errorf("no default roles for category %s", category)
		}
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown stage", `
project: {id: p, kind: clearance-project}
stages:
  lead_times:
    NOT_A_STAGE: {start_day: 0, end_day: 1}
assignment:
  defaults:
    GENERAL: [CLERK]
`},
		{"inverted lead time", `
project: {id: p, kind: clearance-project}
stages:
  lead_times:
    RELEASE: {start_day: 5, end_day: 2}
assignment:
  defaults:
    GENERAL: [CLERK]
`},
		{"unknown role", `
project: {id: p, kind: clearance-project}
stages:
  lead_times:
    RELEASE: {start_day: 1, end_day: 2}
assignment:
  defaults:
    GENERAL: [WIZARD]
`},
		{"wrong kind", `
project: {id: p, kind: software-project}
stages:
  lead_times:
    RELEASE: {start_day: 1, end_day: 2}
assignment:
  defaults:
    GENERAL: [CLERK]
`},
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc.yaml)); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should yield nil,nil; got %v %v", cfg, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "clearline.yml"), []byte(GenerateDefault("p1")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.ID != "p1" {
		t.Fatalf("project id = %q", cfg.Project.ID)
	}
}
