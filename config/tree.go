package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentSchema declares one agent and, recursively, its children and
// reflection agents. Trees are usually loaded from YAML:
//
//	name: assistant
//	prompt: You are a helpful assistant.
//	functions: [current_time]
//	children:
//	  - name: weather
//	    prompt: You answer weather questions.
//	    functions: [getWeather]
type AgentSchema struct {
	Name string `yaml:"name"`
	// Type is main, permanent, worker or reflection. Empty means main for
	// the root, worker for children and reflection for reflections.
	Type   string `yaml:"type,omitempty"`
	Prompt string `yaml:"prompt,omitempty"`
	// FlowInstructionPrompt is appended to Prompt as special instructions.
	FlowInstructionPrompt string `yaml:"flow_instruction_prompt,omitempty"`
	// Functions names entries of the function registry the agent may call.
	Functions   []string      `yaml:"functions,omitempty"`
	Children    []AgentSchema `yaml:"children,omitempty"`
	Reflections []AgentSchema `yaml:"reflections,omitempty"`
	// WorkTimeout and PingInterval override the agent defaults when set.
	WorkTimeout  time.Duration `yaml:"work_timeout,omitempty"`
	PingInterval time.Duration `yaml:"ping_interval,omitempty"`
	// CronInitOnStart runs a reflection agent once when the tree is built.
	CronInitOnStart bool `yaml:"cron_init_on_start,omitempty"`
}

// LoadTree reads an agent tree from a YAML file.
func LoadTree(path string) (AgentSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AgentSchema{}, fmt.Errorf("failed to read agent tree: %w", err)
	}
	return ParseTree(data)
}

// ParseTree decodes an agent tree from YAML and fills in default types.
func ParseTree(data []byte) (AgentSchema, error) {
	var root AgentSchema
	if err := yaml.Unmarshal(data, &root); err != nil {
		return AgentSchema{}, fmt.Errorf("failed to parse agent tree: %w", err)
	}
	if err := root.applyDefaults("main"); err != nil {
		return AgentSchema{}, err
	}
	return root, nil
}

func (s *AgentSchema) applyDefaults(defaultType string) error {
	if s.Name == "" {
		return fmt.Errorf("agent schema without name")
	}
	if s.Type == "" {
		s.Type = defaultType
	}
	switch s.Type {
	case "main", "permanent", "worker", "reflection":
	default:
		return fmt.Errorf("agent %s: unknown type %q", s.Name, s.Type)
	}
	for i := range s.Children {
		if err := s.Children[i].applyDefaults("worker"); err != nil {
			return err
		}
	}
	for i := range s.Reflections {
		if err := s.Reflections[i].applyDefaults("reflection"); err != nil {
			return err
		}
	}
	return nil
}

// Walk calls fn for s and every descendant, children before reflections.
func (s AgentSchema) Walk(fn func(AgentSchema)) {
	fn(s)
	for _, c := range s.Children {
		c.Walk(fn)
	}
	for _, r := range s.Reflections {
		r.Walk(fn)
	}
}
