package config

import (
	"fmt"
)

// RoleTarget specifies an adapter and model combination for one role.
type RoleTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

// RolesConfig maps orchestration roles to adapter/model pairs. The planner,
// retriever, and evaluator run frequently and default to a fast model; the
// synthesizer runs once per research and defaults to a long-context model.
type RolesConfig struct {
	Planner     RoleTarget `yaml:"planner"`
	Retriever   RoleTarget `yaml:"retriever"`
	Evaluator   RoleTarget `yaml:"evaluator"`
	Synthesizer RoleTarget `yaml:"synthesizer"`
}

// DefaultRoles returns the default role routing: Gemini flash for the loop
// stages and Gemini pro for synthesis.
func DefaultRoles() *RolesConfig {
	fast := RoleTarget{Adapter: "google", Model: "gemini-2.0-flash"}
	pro := RoleTarget{Adapter: "google", Model: "gemini-1.5-pro"}
	return &RolesConfig{
		Planner:     fast,
		Retriever:   fast,
		Evaluator:   fast,
		Synthesizer: pro,
	}
}

// applyRoleDefaults fills empty targets from the defaults.
func applyRoleDefaults(r *RolesConfig) {
	defaults := DefaultRoles()
	if r.Planner.Adapter == "" {
		r.Planner = defaults.Planner
	}
	if r.Retriever.Adapter == "" {
		r.Retriever = defaults.Retriever
	}
	if r.Evaluator.Adapter == "" {
		r.Evaluator = defaults.Evaluator
	}
	if r.Synthesizer.Adapter == "" {
		r.Synthesizer = defaults.Synthesizer
	}
}

// Validate checks that every role names an adapter.
func (r *RolesConfig) Validate() error {
	for name, target := range map[string]RoleTarget{
		"planner":     r.Planner,
		"retriever":   r.Retriever,
		"evaluator":   r.Evaluator,
		"synthesizer": r.Synthesizer,
	} {
		if target.Adapter == "" {
			return fmt.Errorf("role %s has no adapter", name)
		}
	}
	return nil
}

// Targets returns the role targets keyed by role name.
func (r *RolesConfig) Targets() map[string]RoleTarget {
	return map[string]RoleTarget{
		"planner":     r.Planner,
		"retriever":   r.Retriever,
		"evaluator":   r.Evaluator,
		"synthesizer": r.Synthesizer,
	}
}
