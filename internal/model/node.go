package model

// ResourceNode is a settlement point mapped to the substation of its unit.
type ResourceNode struct {
	ID         string `json:"node_id"`
	Substation string `json:"substation_name"`
}

// NodeIDs returns the set of node identifiers.
func NodeIDs(nodes []ResourceNode) map[string]bool {
	set := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		set[n.ID] = true
	}
	return set
}
