package config

import (
	"encoding/json"
	"os"

	"github.com/kloros-ai/aic/internal/types"
)

// RiskPolicyTable maps tool name to its configured risk policy (spec §6).
type RiskPolicyTable map[string]types.RiskPolicyEntry

// LoadRiskPolicy reads the risk policy JSON file. A missing file returns an
// empty table and no error: spec's Open Questions section requires the
// high-risk promotion gate to fail closed when the table is absent, which
// governance enforces by treating a lookup miss (empty table included) as
// "no policy entry found", not by treating a missing file as an error here.
func LoadRiskPolicy(path string) (RiskPolicyTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RiskPolicyTable{}, nil
	}
	if err != nil {
		return nil, err
	}
	var table RiskPolicyTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	if table == nil {
		table = RiskPolicyTable{}
	}
	return table, nil
}
