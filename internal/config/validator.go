package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers policy-engine-specific validation
// rules. Must be called before validating a Config.
func RegisterCustomValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("comparator", validateComparator); err != nil {
		return fmt.Errorf("failed to register comparator validator: %w", err)
	}
	return nil
}

// validateComparator accepts the same comparator vocabulary ExprConfig.Cmp
// does; it exists as a named validator so other struct fields referencing
// a comparator by tag can reuse it without duplicating the oneof list.
func validateComparator(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "eq", "ne", "lt", "gt", "le", "ge", "like", "unlike", "ilike", "iunlike", "rlike", "in", "notin", "isnull", "notnull":
		return true
	default:
		return false
	}
}

// Validate validates a Config using struct tags and cross-field rules:
// fileclass set references, rule/policy fileclass references, and
// trigger-to-policy references must all resolve.
func Validate(c *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := validateFileclassReferences(c); err != nil {
		return err
	}
	if err := validatePolicyReferences(c); err != nil {
		return err
	}
	if err := validateTriggerReferences(c); err != nil {
		return err
	}
	return nil
}

func fileclassNames(c *Config) map[string]struct{} {
	names := make(map[string]struct{}, len(c.Fileclasses))
	for _, fc := range c.Fileclasses {
		names[fc.Name] = struct{}{}
	}
	return names
}

// validateFileclassReferences ensures every fileclass uses exactly one of
// a direct definition or a set operation over previously-declared
// members, and that set members resolve.
func validateFileclassReferences(c *Config) error {
	declared := make(map[string]struct{}, len(c.Fileclasses))
	for i, fc := range c.Fileclasses {
		hasDef := fc.Definition != nil
		hasSet := fc.SetOp != ""
		if hasDef == hasSet {
			return fmt.Errorf("fileclasses[%d] %q: specify exactly one of definition or set_op/members", i, fc.Name)
		}
		if hasSet {
			if len(fc.Members) == 0 {
				return fmt.Errorf("fileclasses[%d] %q: set_op requires at least one member", i, fc.Name)
			}
			for _, m := range fc.Members {
				if _, ok := declared[m]; !ok {
					return fmt.Errorf("fileclasses[%d] %q: set member %q is not declared before it", i, fc.Name, m)
				}
			}
		}
		declared[fc.Name] = struct{}{}
	}
	return nil
}

// validatePolicyReferences ensures every fileclass a policy or rule names
// (target or ignored) was declared, and every rule/policy action is
// either a function or a command, never neither or both.
func validatePolicyReferences(c *Config) error {
	known := fileclassNames(c)
	for _, p := range c.Policies {
		for _, fc := range p.IgnoredFileclasses {
			if _, ok := known[fc]; !ok {
				return fmt.Errorf("policy %q: ignored_fileclasses references unknown fileclass %q", p.Name, fc)
			}
		}
		if p.DefaultAction != nil {
			if err := validateActionConfig(p.DefaultAction); err != nil {
				return fmt.Errorf("policy %q: default_action: %w", p.Name, err)
			}
		}
		for _, r := range p.Rules {
			for _, fc := range r.TargetFileclasses {
				if _, ok := known[fc]; !ok {
					return fmt.Errorf("policy %q rule %q: target_fileclasses references unknown fileclass %q", p.Name, r.ID, fc)
				}
			}
			if r.Action != nil {
				if err := validateActionConfig(r.Action); err != nil {
					return fmt.Errorf("policy %q rule %q: %w", p.Name, r.ID, err)
				}
			}
		}
	}
	return nil
}

func validateActionConfig(a *ActionConfig) error {
	hasFunc := a.Function != ""
	hasCmd := len(a.Command) > 0
	if hasFunc == hasCmd {
		return errors.New("action: specify exactly one of function or command")
	}
	return nil
}

// validateTriggerReferences ensures every trigger names a declared
// policy, and per_ost/per_pool/per_user/per_group triggers name subjects.
func validateTriggerReferences(c *Config) error {
	policies := make(map[string]struct{}, len(c.Policies))
	for _, p := range c.Policies {
		policies[p.Name] = struct{}{}
	}
	for _, t := range c.Triggers {
		if _, ok := policies[t.Policy]; !ok {
			return fmt.Errorf("trigger %q: references unknown policy %q", t.Name, t.Policy)
		}
		switch t.Kind {
		case "per_ost", "per_pool", "per_user", "per_group":
			if len(t.Subjects) == 0 {
				return fmt.Errorf("trigger %q: kind %q requires at least one subject", t.Name, t.Kind)
			}
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "ltefield":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
