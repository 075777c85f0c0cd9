package k8sexec

import (
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/model"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// BuildPartyDeployment wraps a party start command in a single-replica deployment.
// The runtime is kept in the foreground with --block so the pod lives as long as the party.
func BuildPartyDeployment(cmd provision.Command, image string) *appsv1.Deployment {
	name := common.GetPartyDeploymentName(cmd.Party)
	labels := map[string]string{
		common.PARTY_NAME_LABEL: name,
		common.PARTY_ROLE_LABEL: string(cmd.Role),
	}

	container := corev1.Container{
		Name:    "party",
		Image:   image,
		Command: []string{cmd.Name},
		Args:    append(append([]string{}, cmd.Args...), "--block"),
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("1.0"),
				corev1.ResourceMemory: resource.MustParse("1Gi"),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("2.0"),
				corev1.ResourceMemory: resource.MustParse("2Gi"),
			},
		},
	}
	if cmd.Port > 0 && cmd.Role == model.RoleHead {
		container.Ports = []corev1.ContainerPort{
			{
				ContainerPort: int32(cmd.Port),
			},
		}
	}

	replicas := int32(1)
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: labels,
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					// parties bind the addresses they were registered with
					HostNetwork: true,
					DNSPolicy:   corev1.DNSClusterFirstWithHostNet,
					Containers:  []corev1.Container{container},
				},
			},
		},
	}

	return deployment
}
