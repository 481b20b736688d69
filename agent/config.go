// Agent configuration types.
//
// Information Hiding:
// - Per-agent override resolution hidden
// - Default values hidden

package agent

import (
	"github.com/ElectronicaGitHub/agented-io/config"
	"github.com/ElectronicaGitHub/agented-io/model"
	"github.com/ElectronicaGitHub/agented-io/prompt"
)

// Config holds the resolved configuration of one agent: its schema plus
// the session settings with per-agent overrides applied.
type Config struct {
	// Name is the unique identifier of the agent in its tree.
	Name string

	Role model.Role

	// SpecialInstructions combines the schema prompt and flow instructions.
	SpecialInstructions string

	// Functions names the registry entries the agent may call.
	Functions []string

	// CronInitOnStart runs a reflection agent once when the tree is built.
	CronInitOnStart bool

	config.AgentConfig
}

// resolveConfig applies the schema overrides on top of the session settings.
func resolveConfig(schema config.AgentSchema, settings config.AgentConfig) Config {
	cfg := Config{
		Name:                schema.Name,
		Role:                model.Role(schema.Type),
		SpecialInstructions: prompt.JoinInstructions(schema.Prompt, schema.FlowInstructionPrompt),
		Functions:           schema.Functions,
		CronInitOnStart:     schema.CronInitOnStart,
		AgentConfig:         settings,
	}
	if schema.WorkTimeout > 0 {
		cfg.WorkTimeout = schema.WorkTimeout
	}
	if schema.PingInterval > 0 {
		cfg.PingInterval = schema.PingInterval
	}
	return cfg
}

// IsReflection returns true for reflection agents.
func (c *Config) IsReflection() bool {
	return c.Role == model.RoleReflection
}
