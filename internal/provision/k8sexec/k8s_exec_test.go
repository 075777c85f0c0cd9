package k8sexec

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
)

func headCommand() provision.Command {
	return provision.BuildStartCommand("ray", &model.PartyRecord{
		Name: "p", Role: model.RoleHead, Ip: "127.0.0.1", Port: 6379, Resources: 16,
	})
}

func TestBuildPartyDeployment(t *testing.T) {
	deployment := BuildPartyDeployment(headCommand(), "ray:test")

	require.Equal(t, "mpc-party-p", deployment.Name)
	require.Equal(t, "head", deployment.Labels[common.PARTY_ROLE_LABEL])
	require.Equal(t, deployment.Labels, deployment.Spec.Selector.MatchLabels)

	container := deployment.Spec.Template.Spec.Containers[0]
	require.Equal(t, "ray:test", container.Image)
	require.Equal(t, []string{"ray"}, container.Command)
	require.Equal(t, "--head", container.Args[1])
	require.Equal(t, "--block", container.Args[len(container.Args)-1])
	require.Equal(t, int32(6379), container.Ports[0].ContainerPort)
	require.True(t, deployment.Spec.Template.Spec.HostNetwork)
}

func TestBuildPartyDeployment_DoesNotMutateCommand(t *testing.T) {
	cmd := headCommand()
	argCount := len(cmd.Args)

	BuildPartyDeployment(cmd, "ray:test")

	require.Len(t, cmd.Args, argCount)
}

func TestK8sExecutor_CreatesDeployment(t *testing.T) {
	clientset := fake.NewClientset()
	e := NewK8sExecutorWithClientset(hclog.NewNullLogger(), clientset, Options{Namespace: "mpc"})

	result, err := e.Run(context.Background(), headCommand())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExitCode)

	deployment, err := clientset.AppsV1().Deployments("mpc").Get(context.Background(), "mpc-party-p", metav1.GetOptions{})
	require.NoError(t, err)
	require.Equal(t, common.RAY_IMAGE, deployment.Spec.Template.Spec.Containers[0].Image)
}

func TestK8sExecutor_ReappliesExistingParty(t *testing.T) {
	clientset := fake.NewClientset()
	e := NewK8sExecutorWithClientset(hclog.NewNullLogger(), clientset, Options{Namespace: "mpc"})

	_, err := e.Run(context.Background(), headCommand())
	require.NoError(t, err)

	e.options.Image = "ray:next"
	_, err = e.Run(context.Background(), headCommand())
	require.NoError(t, err)

	list, err := clientset.AppsV1().Deployments("mpc").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "ray:next", list.Items[0].Spec.Template.Spec.Containers[0].Image)
}

func TestK8sExecutor_WaitsForAvailability(t *testing.T) {
	clientset := fake.NewClientset()
	e := NewK8sExecutorWithClientset(hclog.NewNullLogger(), clientset, Options{
		Namespace:    "mpc",
		WaitReady:    true,
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		deployments := clientset.AppsV1().Deployments("mpc")
		for ctx.Err() == nil {
			deployment, err := deployments.Get(ctx, "mpc-party-p", metav1.GetOptions{})
			if err == nil {
				deployment.Status.AvailableReplicas = 1
				if _, err := deployments.UpdateStatus(ctx, deployment, metav1.UpdateOptions{}); err == nil {
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, err := e.Run(ctx, headCommand())
	require.NoError(t, err)
}

func TestK8sExecutor_WaitHonoursDeadline(t *testing.T) {
	clientset := fake.NewClientset()
	e := NewK8sExecutorWithClientset(hclog.NewNullLogger(), clientset, Options{
		Namespace:    "mpc",
		WaitReady:    true,
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	result, err := e.Run(ctx, headCommand())
	require.Error(t, err)
	require.Equal(t, -1, result.ExitCode)
}
