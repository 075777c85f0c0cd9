package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
)

func party(name string, role model.Role) model.PartyRecord {
	return model.PartyRecord{Name: name, Role: role, Ip: "127.0.0.1", Port: 6379, Resources: 16}
}

func TestNodeRegistry_AddNode(t *testing.T) {
	r := NewNodeRegistry()

	msg, err := r.AddNode(party("p", model.RoleHead))
	require.NoError(t, err)
	require.Equal(t, "Node p added successfully.", msg)

	_, err = r.AddNode(party("w1", model.RoleWorker))
	require.NoError(t, err)
	_, err = r.AddNode(party("w2", model.RoleWorker))
	require.NoError(t, err)

	state := r.State()
	require.Equal(t, "p", state.Head.Name)
	require.Equal(t, []string{"p", "w1", "w2"}, state.PartyNames())
}

func TestNodeRegistry_SecondHeadReplacesFirst(t *testing.T) {
	r := NewNodeRegistry()

	_, err := r.AddNode(party("p1", model.RoleHead))
	require.NoError(t, err)
	_, err = r.AddNode(party("p2", model.RoleHead))
	require.NoError(t, err)

	state := r.State()
	require.Equal(t, "p2", state.Head.Name)
	require.Empty(t, state.Workers)
	require.Equal(t, []string{"p2"}, state.PartyNames())

	// the replaced head's name is free again
	_, err = r.AddNode(party("p1", model.RoleWorker))
	require.NoError(t, err)
}

func TestNodeRegistry_RejectsDuplicateNames(t *testing.T) {
	r := NewNodeRegistry()

	_, err := r.AddNode(party("p", model.RoleHead))
	require.NoError(t, err)
	_, err = r.AddNode(party("p", model.RoleWorker))
	require.True(t, model.IsKind(err, model.ValidationErrorKind))

	_, err = r.AddNode(party("w", model.RoleWorker))
	require.NoError(t, err)
	_, err = r.AddNode(party("w", model.RoleWorker))
	require.True(t, model.IsKind(err, model.ValidationErrorKind))
	_, err = r.AddNode(party("w", model.RoleHead))
	require.True(t, model.IsKind(err, model.ValidationErrorKind))

	// re-registering the head under its own name is a replacement
	_, err = r.AddNode(party("p", model.RoleHead))
	require.NoError(t, err)
}

func TestNodeRegistry_Validation(t *testing.T) {
	r := NewNodeRegistry()

	_, err := r.AddNode(party(" ", model.RoleHead))
	require.True(t, model.IsKind(err, model.ValidationErrorKind))

	_, err = r.AddNode(party("x", model.Role("leader")))
	require.True(t, model.IsKind(err, model.ValidationErrorKind))

	bad := party("x", model.RoleWorker)
	bad.Port = 70000
	_, err = r.AddNode(bad)
	require.True(t, model.IsKind(err, model.ValidationErrorKind))

	noIp := party("y", model.RoleWorker)
	noIp.Ip = ""
	_, err = r.AddNode(noIp)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", r.State().Workers[0].Ip)
}

func TestNodeRegistry_StateIsACopy(t *testing.T) {
	r := NewNodeRegistry()
	_, err := r.AddNode(party("p", model.RoleHead))
	require.NoError(t, err)

	state := r.State()
	state.Head.Name = "mutated"

	require.Equal(t, "p", r.Head().Name)
}

func TestNodeRegistry_Reset(t *testing.T) {
	r := NewNodeRegistry()
	_, err := r.AddNode(party("p", model.RoleHead))
	require.NoError(t, err)

	r.Reset()

	require.Nil(t, r.Head())
	require.Empty(t, r.Parties())
}
