package bus

import "github.com/kloros-ai/aic/internal/types"

// SelectPlaybook implements spec §4.1's matching algorithm: filter
// playbooks whose match pattern is a subset of the event, then take the
// highest-ranked match. playbooks need not be sorted; among matches of equal
// rank the earlier entry wins. Returns false if nothing matches.
func SelectPlaybook(playbooks []types.Playbook, event types.HealEvent) (types.Playbook, bool) {
	var best types.Playbook
	found := false
	for _, pb := range playbooks {
		if pb.Match.Matches(event) && (!found || pb.Rank > best.Rank) {
			best, found = pb, true
		}
	}
	return best, found
}
