package model

import "fmt"

type Role string

const (
	RoleHead   Role = "head"
	RoleWorker Role = "worker"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHead, RoleWorker:
		return true
	}
	return false
}

// PartyRecord describes one data-holding party of the cluster.
type PartyRecord struct {
	Name      string `json:"name"`
	Role      Role   `json:"node_type"`
	Ip        string `json:"ip"`
	Port      int    `json:"port"`
	Resources int    `json:"resources"`
}

// Address is the ip:port pair the party binds (head) or joins (worker).
func (p *PartyRecord) Address() string {
	return fmt.Sprintf("%s:%d", p.Ip, p.Port)
}

// ClusterState is a snapshot of the registered parties. Workers keep registration order.
type ClusterState struct {
	Head    *PartyRecord   `json:"head"`
	Workers []*PartyRecord `json:"workers"`
}

// Parties returns the head followed by the workers.
func (s *ClusterState) Parties() []*PartyRecord {
	parties := make([]*PartyRecord, 0, len(s.Workers)+1)
	if s.Head != nil {
		parties = append(parties, s.Head)
	}
	return append(parties, s.Workers...)
}

func (s *ClusterState) PartyNames() []string {
	names := []string{}
	for _, party := range s.Parties() {
		names = append(names, party.Name)
	}
	return names
}
