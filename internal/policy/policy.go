// Package policy loads the versioned generation policy: the system
// instruction sent with every listing request, model names, and the fixed
// prompts used by the vision pass and the image studio.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultYAML []byte

// Policy is the swappable configuration artifact behind content generation.
type Policy struct {
	Version             string  `yaml:"version"`
	Name                string  `yaml:"name"`
	Models              Models  `yaml:"models"`
	Temperature         float32 `yaml:"temperature"`
	WebSearch           bool    `yaml:"web_search"`
	VisionPrompt        string  `yaml:"vision_prompt"`
	Task                string  `yaml:"task"`
	AngleShiftDirective string  `yaml:"angle_shift_directive"`
	Studio              Studio  `yaml:"studio"`
	SystemInstruction   string  `yaml:"system_instruction"`
}

// Models names the Gemini models used for each call type.
type Models struct {
	Text   string `yaml:"text"`
	Vision string `yaml:"vision"`
	Image  string `yaml:"image"`
}

// Studio holds the image studio scene instructions.
type Studio struct {
	WhiteBackground string `yaml:"white_background"`
	LifestylePrefix string `yaml:"lifestyle_prefix"`
	DefaultScene    string `yaml:"default_scene"`
}

// Default returns the embedded policy. It panics if the embedded file is
// invalid, which can only happen with a broken build.
func Default() *Policy {
	p, err := Parse(DefaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy is invalid: %v", err))
	}
	return p
}

// Load reads a policy file. An empty path returns the embedded default.
// Fields missing from the file keep their default values.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes a policy document layered over the embedded defaults.
func Parse(data []byte) (*Policy, error) {
	p := &Policy{}
	if err := yaml.Unmarshal(DefaultYAML, p); err != nil {
		return nil, fmt.Errorf("parsing default policy: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that the policy can drive every call type.
func (p *Policy) Validate() error {
	var missing []string
	if p.Version == "" {
		missing = append(missing, "version")
	}
	if p.Models.Text == "" {
		missing = append(missing, "models.text")
	}
	if p.Models.Vision == "" {
		missing = append(missing, "models.vision")
	}
	if p.Models.Image == "" {
		missing = append(missing, "models.image")
	}
	if strings.TrimSpace(p.SystemInstruction) == "" {
		missing = append(missing, "system_instruction")
	}
	if len(missing) > 0 {
		return fmt.Errorf("policy missing fields: %s", strings.Join(missing, ", "))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("policy temperature %.2f out of range 0-2", p.Temperature)
	}
	return nil
}
