package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/kloros-ai/aic/internal/types"
	"gopkg.in/yaml.v3"
)

// LoadPlaybooks parses the playbook YAML document (spec §6) and returns the
// playbooks sorted by descending rank, stable on ties, so the matcher can
// take the first match without re-sorting on every event.
func LoadPlaybooks(path string) ([]types.Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load playbooks: %w", err)
	}
	var file types.PlaybookFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse playbooks: %w", err)
	}
	sort.SliceStable(file.Playbooks, func(i, j int) bool {
		return file.Playbooks[i].Rank > file.Playbooks[j].Rank
	})
	return file.Playbooks, nil
}
