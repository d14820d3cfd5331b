package config

import "testing"

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Daemon.LogLevel != "info" {
		t.Errorf("Daemon.LogLevel = %q, want %q", cfg.Daemon.LogLevel, "info")
	}
	if cfg.Daemon.Workers != 4 {
		t.Errorf("Daemon.Workers = %d, want 4", cfg.Daemon.Workers)
	}
	if cfg.Daemon.QueueDepth != 1000 {
		t.Errorf("Daemon.QueueDepth = %d, want 1000", cfg.Daemon.QueueDepth)
	}
	if cfg.Catalog.CommitEvery != 1000 {
		t.Errorf("Catalog.CommitEvery = %d, want 1000", cfg.Catalog.CommitEvery)
	}
}

func TestConfig_SetDefaults_PreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{Daemon: DaemonConfig{LogLevel: "debug", Workers: 16}}
	cfg.SetDefaults()

	if cfg.Daemon.LogLevel != "debug" {
		t.Errorf("LogLevel overwritten: got %q", cfg.Daemon.LogLevel)
	}
	if cfg.Daemon.Workers != 16 {
		t.Errorf("Workers overwritten: got %d", cfg.Daemon.Workers)
	}
}

func TestConfig_SetDefaults_PolicySchedulerDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Policies: []PolicyConfig{{Name: "purge"}}}
	cfg.SetDefaults()

	p := cfg.Policies[0]
	if p.SortAttr != "last_mod" {
		t.Errorf("SortAttr = %q, want last_mod", p.SortAttr)
	}
	if p.Scheduler.RateLimitMaxWaits != 3 {
		t.Errorf("RateLimitMaxWaits = %d, want 3", p.Scheduler.RateLimitMaxWaits)
	}
}

func TestConfig_SetDefaults_TriggerWatermarkDimension(t *testing.T) {
	t.Parallel()

	cfg := Config{Triggers: []TriggerConfig{{Name: "hsm-purge"}}}
	cfg.SetDefaults()

	if cfg.Triggers[0].Watermark.Dimension != "percent" {
		t.Errorf("Watermark.Dimension = %q, want percent", cfg.Triggers[0].Watermark.Dimension)
	}
}

func validConfig() Config {
	return Config{
		Catalog: CatalogConfig{DSN: "/tmp/catalog.db"},
		Fileclasses: []FileclassConfig{
			{Name: "big_files", Definition: &ExprConfig{Attr: "size", Cmp: "gt", Value: "10MB"}},
		},
		Policies: []PolicyConfig{
			{
				Name:          "purge",
				DefaultAction: &ActionConfig{Function: "common.unlink"},
				Rules: []RuleConfig{
					{ID: "default", Action: &ActionConfig{Function: "common.unlink"}},
				},
			},
		},
		Triggers: []TriggerConfig{
			{
				Name:          "every-hour",
				Kind:          "periodic",
				Policy:        "purge",
				CheckInterval: 3600_000_000_000,
			},
		},
	}
}

func TestBuild_ProducesFileclassPolicyAndTrigger(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.SetDefaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	built, err := Build(&cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := built.Fileclasses.Get("big_files"); !ok {
		t.Error("fileclass big_files not registered")
	}
	if len(built.Policies) != 1 || built.Policies[0].Name != "purge" {
		t.Fatalf("unexpected policies: %+v", built.Policies)
	}
	if len(built.Triggers) != 1 || built.Triggers[0].Name != "every-hour" {
		t.Fatalf("unexpected triggers: %+v", built.Triggers)
	}
}

func TestBuild_RejectsUnknownAttribute(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Fileclasses[0].Definition.Attr = "not_a_real_attribute"

	if _, err := Build(&cfg); err == nil {
		t.Fatal("expected error for unknown attribute")
	}
}

func TestBuildSchedulerChain_EmptyWhenUnconfigured(t *testing.T) {
	t.Parallel()

	if gates := BuildSchedulerChain(SchedulerConfig{}); len(gates) != 0 {
		t.Errorf("expected no gates, got %d", len(gates))
	}
}

func TestBuildSchedulerChain_BuildsBothStages(t *testing.T) {
	t.Parallel()

	gates := BuildSchedulerChain(SchedulerConfig{
		MaxActionCount:  100,
		RateLimitCount:  10,
		RateLimitPeriod: 1,
	})
	if len(gates) != 2 {
		t.Fatalf("expected 2 gates, got %d", len(gates))
	}
}
