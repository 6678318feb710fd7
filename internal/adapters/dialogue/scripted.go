package dialogue

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

//go:embed default_script.yaml
var defaultScript []byte

// Script is the YAML definition served by ScriptedDialogue.
type Script struct {
	Rules []Rule `yaml:"rules"`
}

// Rule matches an outbound message either exactly by payload or by a
// case-insensitive substring.
type Rule struct {
	Name      string         `yaml:"name"`
	Payloads  []string       `yaml:"payloads"`
	Contains  []string       `yaml:"contains"`
	Responses []wireFragment `yaml:"responses"`
}

func (r Rule) matches(message string) bool {
	for _, p := range r.Payloads {
		if message == p {
			return true
		}
	}
	lower := strings.ToLower(message)
	for _, c := range r.Contains {
		if c != "" && strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// ScriptedDialogue is an in-process dialogue server for local runs and demos.
type ScriptedDialogue struct {
	script Script
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parse dialogue script: %w", err)
	}
	return s, nil
}

// NewScriptedDialogue loads the script at path, or the embedded demo script when path is empty.
func NewScriptedDialogue(path string) (*ScriptedDialogue, error) {
	data := defaultScript
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read dialogue script: %w", err)
		}
		data = b
	}

	s, err := ParseScript(data)
	if err != nil {
		return nil, err
	}
	return &ScriptedDialogue{script: s}, nil
}

// NewScriptedDialogueFromScript wraps an already parsed script.
func NewScriptedDialogueFromScript(s Script) *ScriptedDialogue {
	return &ScriptedDialogue{script: s}
}

// Exchange implements domain.DialogueClient.
func (d *ScriptedDialogue) Exchange(ctx context.Context, sender domain.SessionID, message string) ([]domain.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
	}
	log := observability.LoggerFromContext(ctx).With("session_id", sender)

	for _, r := range d.script.Rules {
		if r.matches(message) {
			log.Debug("scripted dialogue rule matched", "rule", r.Name)
			return toFragments(r.Responses, log), nil
		}
	}

	return []domain.Fragment{{
		Text: fmt.Sprintf("I hear you. You said %q. Could you tell me a bit more about how you're feeling?", message),
	}}, nil
}

// Probe always succeeds; the script is in-process.
func (d *ScriptedDialogue) Probe(ctx context.Context) error {
	return ctx.Err()
}
