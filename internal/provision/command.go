package provision

import (
	"strconv"
	"strings"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

// Command is a program invocation with its arguments kept as separate tokens.
// It is never passed through a shell.
type Command struct {
	Name  string
	Args  []string
	Party string
	Role  model.Role
	Port  int
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// BuildStartCommand renders the runtime start command for one party.
// The head binds ip:port, a worker joins the head at the same address.
func BuildStartCommand(binary string, party *model.PartyRecord) Command {
	args := []string{"start"}
	if party.Role == model.RoleHead {
		args = append(args,
			"--head",
			"--node-ip-address="+party.Ip,
			"--port="+strconv.Itoa(party.Port),
		)
	} else {
		args = append(args, "--address="+party.Address())
	}
	args = append(args,
		"--resources="+common.ResourceTag(party.Name, party.Resources),
		"--include-dashboard=false",
		"--disable-usage-stats",
	)

	return Command{
		Name:  binary,
		Args:  args,
		Party: party.Name,
		Role:  party.Role,
		Port:  party.Port,
	}
}

// BuildClusterCommands returns one start command per party, head first.
func BuildClusterCommands(binary string, state *model.ClusterState) []Command {
	commands := []Command{}
	for _, party := range state.Parties() {
		commands = append(commands, BuildStartCommand(binary, party))
	}
	return commands
}
