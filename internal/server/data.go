package server

import (
	"encoding/json"
	"io"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(i)
}

type AddNodeRequest struct {
	Ip        string `json:"ip"`
	Port      int    `json:"port"`
	NodeType  string `json:"node_type"`
	Name      string `json:"name"`
	Resources int    `json:"resources"`
}

func newAddNodeRequest() *AddNodeRequest {
	return &AddNodeRequest{
		Ip:        common.DEFAULT_PARTY_IP,
		Port:      common.DEFAULT_PARTY_PORT,
		NodeType:  common.DEFAULT_PARTY_ROLE,
		Resources: common.DEFAULT_PARTY_RESOURCES,
	}
}

func (r *AddNodeRequest) PartyRecord() model.PartyRecord {
	return model.PartyRecord{
		Name:      r.Name,
		Role:      model.Role(r.NodeType),
		Ip:        r.Ip,
		Port:      r.Port,
		Resources: r.Resources,
	}
}

type PartiesResponse struct {
	Head    *model.PartyRecord   `json:"head"`
	Workers []*model.PartyRecord `json:"workers"`
	States  map[string]string    `json:"states,omitempty"`
}
