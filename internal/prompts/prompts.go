// ABOUTME: Static texts and keyboard layout used by the chat bridge
// ABOUTME: Loaded from YAML; an embedded default is used unless a file overrides it

package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Callback codes carried by keyboard buttons.
const (
	CallbackStart   = "start"
	CallbackExplain = "desc"
)

// Button is one keyboard entry. Key is what the user sends to press it
// (a reaction emoji on Matrix).
type Button struct {
	Label    string `yaml:"label"`
	Key      string `yaml:"key"`
	Callback string `yaml:"callback"`
}

// Prompts holds every user-facing fixed text.
type Prompts struct {
	Welcome          string   `yaml:"welcome"`
	Restarted        string   `yaml:"restarted"`
	DegradedWarning  string   `yaml:"degraded_warning"`
	DegradedReply    string   `yaml:"degraded_reply"`
	NothingToExplain string   `yaml:"nothing_to_explain"`
	Explain          string   `yaml:"explain"`
	Keyboard         []Button `yaml:"keyboard"`
}

// Default returns the embedded prompts.
func Default() *Prompts {
	p, err := parse(defaultYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads path and fills any field it leaves empty from Default.
// An empty path returns Default.
func Load(path string) (*Prompts, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}
	p, err := parse(data, Default())
	if err != nil {
		return nil, fmt.Errorf("prompts file %s: %w", path, err)
	}
	return p, nil
}

func parse(data []byte, base *Prompts) (*Prompts, error) {
	var p Prompts
	if base != nil {
		p = *base
		p.Keyboard = nil
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(p.Keyboard) == 0 && base != nil {
		p.Keyboard = base.Keyboard
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the keyboard: every button needs a label, a unique key and
// a known callback.
func (p *Prompts) Validate() error {
	seen := make(map[string]bool)
	for i, b := range p.Keyboard {
		if strings.TrimSpace(b.Label) == "" {
			return fmt.Errorf("keyboard[%d]: label is required", i)
		}
		if b.Key == "" {
			return fmt.Errorf("keyboard[%d]: key is required", i)
		}
		if seen[b.Key] {
			return fmt.Errorf("keyboard[%d]: duplicate key %q", i, b.Key)
		}
		seen[b.Key] = true
		switch b.Callback {
		case CallbackStart, CallbackExplain:
		default:
			return fmt.Errorf("keyboard[%d]: unknown callback %q", i, b.Callback)
		}
	}
	return nil
}

// CallbackFor returns the callback of the button pressed with key.
func (p *Prompts) CallbackFor(key string) (string, bool) {
	for _, b := range p.Keyboard {
		if b.Key == key {
			return b.Callback, true
		}
	}
	return "", false
}
