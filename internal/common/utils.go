package common

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResourceTag renders a single-entry resource map as {"name": quota}.
func ResourceTag(name string, quota int) string {
	quotedName, err := json.Marshal(name)
	if err != nil {
		quotedName = []byte(fmt.Sprintf("%q", name))
	}
	return fmt.Sprintf("{%s: %d}", quotedName, quota)
}

func InitializedMessage(handleCount int) string {
	return fmt.Sprintf("initialized, %d, nodes", handleCount)
}

func NodeAddedMessage(name string) string {
	return fmt.Sprintf("Node %s added successfully.", name)
}

// GetPartyDeploymentName returns a DNS-1123 compatible deployment name for a party.
func GetPartyDeploymentName(partyName string) string {
	name := strings.ToLower(partyName)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, name)
	name = fmt.Sprintf("%s-%s", PARTY_DEPLOYMENT_PREFIX, strings.Trim(name, "-"))
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-")
	}
	return name
}
