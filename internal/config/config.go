// Package config loads and validates the policy engine's YAML
// configuration: global daemon options, the catalog connection, and one
// block per fileclass, policy and trigger.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	// Daemon configures process-wide options: logging, pidfile, admin
	// surface, worker pool sizing.
	Daemon DaemonConfig `yaml:"daemon" mapstructure:"daemon"`

	// Catalog configures the persistent entry catalog connection.
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`

	// Fileclasses declares named boolean expressions over attributes.
	Fileclasses []FileclassConfig `yaml:"fileclasses" mapstructure:"fileclasses" validate:"omitempty,dive"`

	// Policies declares the ordered rule sets a policy runner executes.
	Policies []PolicyConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`

	// Triggers declares what causes a policy run to start.
	Triggers []TriggerConfig `yaml:"triggers" mapstructure:"triggers" validate:"omitempty,dive"`
}

// DaemonConfig configures process-wide daemon behaviour.
type DaemonConfig struct {
	// LogLevel sets the minimum slog level: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// StateDir holds the daemon's pidfile (rbhcored.pid).
	StateDir string `yaml:"state_dir" mapstructure:"state_dir"`

	// AdminAddr is the address the read-mostly admin HTTP surface listens on.
	// Empty disables the admin surface.
	AdminAddr string `yaml:"admin_addr" mapstructure:"admin_addr" validate:"omitempty,hostname_port"`

	// Workers is the size of the policy runner's worker pool.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"omitempty,min=1"`

	// QueueDepth bounds the runner's in-flight action queue.
	QueueDepth int `yaml:"queue_depth" mapstructure:"queue_depth" validate:"omitempty,min=1"`
}

// CatalogConfig configures the persistent entry catalog.
type CatalogConfig struct {
	// DSN is the sqlite data source name (e.g. "/var/lib/rbhcored/catalog.db").
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"required"`

	// RetryDelayMin/RetryDelayMax bound the exponential backoff the
	// catalog gateway applies to transient (BUSY/LOCKED) errors.
	RetryDelayMin time.Duration `yaml:"retry_delay_min" mapstructure:"retry_delay_min"`
	RetryDelayMax time.Duration `yaml:"retry_delay_max" mapstructure:"retry_delay_max"`

	// CommitEvery batches this many writes per checkpoint.
	CommitEvery int `yaml:"commit_every" mapstructure:"commit_every" validate:"omitempty,min=1"`
}

// ExprConfig is the structured, recursive representation of a boolean
// expression as read from YAML. Exactly one of Attr (a Condition leaf)
// or All/Any/Not (a compound node) is populated; All/Any build a chain
// of And/Or over their elements.
type ExprConfig struct {
	// All, if non-empty, is an implicit AND over its elements.
	All []ExprConfig `yaml:"all" mapstructure:"all"`
	// Any, if non-empty, is an implicit OR over its elements.
	Any []ExprConfig `yaml:"any" mapstructure:"any"`
	// Not, if non-nil, negates the wrapped expression.
	Not *ExprConfig `yaml:"not" mapstructure:"not"`

	// Attr names a standard attribute by its config name (see
	// internal/domain/attr.StdIndexByName), e.g. "size", "last_mod", "type".
	Attr string `yaml:"attr" mapstructure:"attr"`
	// Cmp is the comparator: one of "eq","ne","lt","gt","le","ge","like",
	// "unlike","ilike","iunlike","rlike","in","notin","isnull","notnull".
	Cmp string `yaml:"cmp" mapstructure:"cmp" validate:"omitempty,oneof=eq ne lt gt le ge like unlike ilike iunlike rlike in notin isnull notnull"`
	// Value is the comparator's right-hand side. For time attributes it
	// is parsed as a duration (e.g. "30d", "2h") compared against the
	// entry's age, so cmp "gt" with "30d" selects entries older than 30 days.
	// For "in"/"notin" it is a comma-separated list.
	Value string `yaml:"value" mapstructure:"value"`
}

// FileclassConfig declares one named fileclass.
type FileclassConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Definition is a direct boolean expression. Mutually exclusive with SetOp/Members.
	Definition *ExprConfig `yaml:"definition" mapstructure:"definition"`

	// SetOp combines previously-declared fileclasses instead of a direct
	// boolean definition: "union", "intersect" or "difference".
	SetOp   string   `yaml:"set_op" mapstructure:"set_op" validate:"omitempty,oneof=union intersect difference"`
	Members []string `yaml:"members" mapstructure:"members"`

	Report bool `yaml:"report" mapstructure:"report"`

	// PolicyParams overrides action parameters for entries of this
	// fileclass, keyed by policy name.
	PolicyParams map[string]map[string]string `yaml:"policy_params" mapstructure:"policy_params"`
}

// ActionConfig declares the action a rule or policy default invokes.
type ActionConfig struct {
	// Function names a built-in, e.g. "common.unlink", "common.copy".
	// Mutually exclusive with Command.
	Function string `yaml:"function" mapstructure:"function"`
	// Command is a shell argv template; "{name}" placeholders are
	// substituted from the action's layered parameters.
	Command []string `yaml:"command" mapstructure:"command"`
}

// RuleConfig declares one ordered rule within a policy.
type RuleConfig struct {
	ID                string       `yaml:"id" mapstructure:"id" validate:"required"`
	TargetFileclasses []string     `yaml:"target_fileclasses" mapstructure:"target_fileclasses"`
	Condition         *ExprConfig  `yaml:"condition" mapstructure:"condition"`
	Action            *ActionConfig `yaml:"action" mapstructure:"action"`
	Params            map[string]string `yaml:"params" mapstructure:"params"`
}

// FailurePolicyConfig configures when a policy run suspends itself
// because too many of its actions are failing.
type FailurePolicyConfig struct {
	// SuspendErrorPct suspends the run once this percentage (0-100) of
	// submitted actions have failed. 0 disables the check.
	SuspendErrorPct float64 `yaml:"suspend_error_pct" mapstructure:"suspend_error_pct" validate:"omitempty,min=0,max=100"`
	// SuspendErrorMin is the minimum number of failures before the
	// percentage check is consulted, avoiding false trips on small runs.
	SuspendErrorMin uint64 `yaml:"suspend_error_min" mapstructure:"suspend_error_min"`
}

// SchedulerConfig configures the pre-execution gate chain a policy run
// submits every candidate through.
type SchedulerConfig struct {
	MaxActionCount  uint64 `yaml:"max_action_count" mapstructure:"max_action_count"`
	MaxActionVolume uint64 `yaml:"max_action_volume" mapstructure:"max_action_volume"`

	RateLimitCount  uint64        `yaml:"rate_limit_count" mapstructure:"rate_limit_count"`
	RateLimitVolume uint64        `yaml:"rate_limit_volume" mapstructure:"rate_limit_volume"`
	RateLimitPeriod time.Duration `yaml:"rate_limit_period" mapstructure:"rate_limit_period"`
	RateLimitMaxWaits int         `yaml:"rate_limit_max_waits" mapstructure:"rate_limit_max_waits"`
}

// PolicyConfig declares one named, ordered rule set.
type PolicyConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	Scope         *ExprConfig       `yaml:"scope" mapstructure:"scope"`
	DefaultAction *ActionConfig     `yaml:"default_action" mapstructure:"default_action"`
	DefaultParams map[string]string `yaml:"default_params" mapstructure:"default_params"`
	SortAttr      string            `yaml:"sort_attr" mapstructure:"sort_attr"`

	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`

	IgnoreExprs        []ExprConfig `yaml:"ignore" mapstructure:"ignore"`
	IgnoredFileclasses []string     `yaml:"ignored_fileclasses" mapstructure:"ignored_fileclasses"`

	StatusManager  string `yaml:"status_manager" mapstructure:"status_manager"`
	ActionName     string `yaml:"action_name" mapstructure:"action_name"`
	ManagesDeleted bool   `yaml:"manages_deleted" mapstructure:"manages_deleted"`

	FailurePolicy FailurePolicyConfig `yaml:"failure_policy" mapstructure:"failure_policy"`
	Scheduler     SchedulerConfig     `yaml:"scheduler" mapstructure:"scheduler"`

	// NbThreads sizes this policy's own worker pool slice, overriding
	// daemon.workers for this policy alone. 0 means inherit.
	NbThreads int `yaml:"nb_threads" mapstructure:"nb_threads" validate:"omitempty,min=1"`
}

// WatermarkConfig pairs a high and low threshold in one dimension.
type WatermarkConfig struct {
	// Dimension is "blocks", "bytes", "count" or "percent".
	Dimension string  `yaml:"dimension" mapstructure:"dimension" validate:"omitempty,oneof=blocks bytes count percent"`
	High      float64 `yaml:"high" mapstructure:"high"`
	Low       float64 `yaml:"low" mapstructure:"low" validate:"ltefield=High"`
}

// TriggerConfig declares one configured trigger.
type TriggerConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Kind is "periodic", "global_usage", "per_ost", "per_pool",
	// "per_user", "per_group" or "custom".
	Kind          string          `yaml:"kind" mapstructure:"kind" validate:"required,oneof=periodic global_usage per_ost per_pool per_user per_group custom"`
	Policy        string          `yaml:"policy" mapstructure:"policy" validate:"required"`
	TargetClass   string          `yaml:"target_class" mapstructure:"target_class"`
	Subjects      []string        `yaml:"subjects" mapstructure:"subjects"`
	CheckInterval time.Duration   `yaml:"check_interval" mapstructure:"check_interval" validate:"required"`
	Watermark     WatermarkConfig `yaml:"watermark" mapstructure:"watermark"`

	MaxActionCount  uint64 `yaml:"max_action_count" mapstructure:"max_action_count"`
	MaxActionVolume uint64 `yaml:"max_action_volume" mapstructure:"max_action_volume"`

	PostTriggerWait  time.Duration     `yaml:"post_trigger_wait" mapstructure:"post_trigger_wait"`
	Params           map[string]string `yaml:"params" mapstructure:"params"`
	AlertOnNotEnough bool              `yaml:"alert_on_not_enough" mapstructure:"alert_on_not_enough"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Daemon.LogLevel == "" {
		c.Daemon.LogLevel = "info"
	}
	if c.Daemon.StateDir == "" {
		c.Daemon.StateDir = "/var/lib/rbhcored"
	}
	if c.Daemon.Workers == 0 {
		c.Daemon.Workers = 4
	}
	if c.Daemon.QueueDepth == 0 {
		c.Daemon.QueueDepth = 1000
	}

	if c.Catalog.RetryDelayMin == 0 {
		c.Catalog.RetryDelayMin = 50 * time.Millisecond
	}
	if c.Catalog.RetryDelayMax == 0 {
		c.Catalog.RetryDelayMax = 5 * time.Second
	}
	if c.Catalog.CommitEvery == 0 {
		c.Catalog.CommitEvery = 1000
	}

	for i := range c.Policies {
		p := &c.Policies[i]
		if p.SortAttr == "" {
			p.SortAttr = "last_mod"
		}
		if p.Scheduler.RateLimitPeriod == 0 {
			p.Scheduler.RateLimitPeriod = time.Minute
		}
		if p.Scheduler.RateLimitMaxWaits == 0 {
			p.Scheduler.RateLimitMaxWaits = 3
		}
	}

	for i := range c.Triggers {
		t := &c.Triggers[i]
		if t.Watermark.Dimension == "" {
			t.Watermark.Dimension = "percent"
		}
	}
}
