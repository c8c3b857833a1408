package governance

import (
	"os"
	"time"

	"github.com/kloros-ai/aic/internal/types"
	"gopkg.in/yaml.v3"
)

// capabilitiesRegistry is the runtime tool registry config (spec §4.2,
// "updates the runtime tool registry config"): a flat map keyed by tool
// name so a caller can check `tools.<name>.status` without walking a
// directory tree at call time.
type capabilitiesRegistry struct {
	Tools map[string]capabilityEntry `yaml:"tools"`
}

// capabilityEntry mirrors spec §6's `tools.<name> = { version, risk,
// description, status, promoted_at }` shape.
type capabilityEntry struct {
	Version     string `yaml:"version"`
	Risk        string `yaml:"risk,omitempty"`
	Description string `yaml:"description,omitempty"`
	Status      string `yaml:"status"`
	PromotedAt  string `yaml:"promoted_at"`
}

// updateCapabilitiesRegistry marks name as promoted at version in
// capabilities.yaml, merging into whatever is already on disk rather than
// overwriting other tools' entries. Description is carried over from any
// prior entry for name, since the artifact metadata this call has on hand
// (spec §3's ArtifactMetadata) has no description field of its own.
func (g *Governance) updateCapabilitiesRegistry(name, version string, risk types.RiskClass) error {
	reg, err := g.readCapabilitiesRegistry()
	if err != nil {
		return err
	}
	if reg.Tools == nil {
		reg.Tools = map[string]capabilityEntry{}
	}
	description := reg.Tools[name].Description
	reg.Tools[name] = capabilityEntry{
		Version: version, Risk: string(risk), Description: description,
		Status: string(types.StatusPromoted), PromotedAt: g.now().UTC().Format(time.RFC3339),
	}
	data, err := yaml.Marshal(reg)
	if err != nil {
		return err
	}
	tmp := g.paths.CapabilitiesYAML + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, g.paths.CapabilitiesYAML)
}

func (g *Governance) readCapabilitiesRegistry() (capabilitiesRegistry, error) {
	var reg capabilitiesRegistry
	data, err := os.ReadFile(g.paths.CapabilitiesYAML)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return reg, err
	}
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return reg, err
	}
	return reg, nil
}
