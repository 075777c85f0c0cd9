package k8sexec

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/mpc-orchestrator/internal/provision"
)

const defaultPollInterval = 1 * time.Second

type Options struct {
	Namespace    string
	Image        string
	WaitReady    bool
	PollInterval time.Duration
}

// K8sExecutor launches every party as a deployment in a Kubernetes namespace.
type K8sExecutor struct {
	logger    hclog.Logger
	clientset kubernetes.Interface
	options   Options
}

func NewK8sExecutor(logger hclog.Logger, configFilePath string, options Options) (*K8sExecutor, error) {
	// connect to Kubernetes cluster
	config, err := clientcmd.BuildConfigFromFlags("", configFilePath)
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("creating clientset: %w", err)
	}

	return NewK8sExecutorWithClientset(logger, clientset, options), nil
}

func NewK8sExecutorWithClientset(logger hclog.Logger, clientset kubernetes.Interface, options Options) *K8sExecutor {
	if options.Namespace == "" {
		options.Namespace = "default"
	}
	if options.Image == "" {
		options.Image = common.RAY_IMAGE
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaultPollInterval
	}

	return &K8sExecutor{
		logger:    logger,
		clientset: clientset,
		options:   options,
	}
}

func (e *K8sExecutor) Run(ctx context.Context, cmd provision.Command) (provision.Result, error) {
	deployment := BuildPartyDeployment(cmd, e.options.Image)

	if err := e.applyDeployment(ctx, deployment); err != nil {
		return provision.Result{ExitCode: -1, Stderr: err.Error()}, err
	}
	e.logger.Debug("Deployment applied", "party", cmd.Party, "deployment", deployment.Name)

	if e.options.WaitReady {
		if err := e.waitAvailable(ctx, deployment.Name); err != nil {
			return provision.Result{ExitCode: -1, Stderr: err.Error()}, err
		}
	}

	return provision.Result{Stdout: fmt.Sprintf("deployment %s/%s applied", e.options.Namespace, deployment.Name)}, nil
}

// applyDeployment creates the deployment, or replaces its spec when the party was started before.
func (e *K8sExecutor) applyDeployment(ctx context.Context, deployment *appsv1.Deployment) error {
	deploymentsClient := e.clientset.AppsV1().Deployments(e.options.Namespace)

	_, err := deploymentsClient.Create(ctx, deployment, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return err
	}

	existing, err := deploymentsClient.Get(ctx, deployment.Name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	existing.Labels = deployment.Labels
	existing.Spec = deployment.Spec

	_, err = deploymentsClient.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}

func (e *K8sExecutor) waitAvailable(ctx context.Context, deploymentName string) error {
	deploymentsClient := e.clientset.AppsV1().Deployments(e.options.Namespace)

	return wait.PollUntilContextCancel(ctx, e.options.PollInterval, true, func(ctx context.Context) (bool, error) {
		deployment, err := deploymentsClient.Get(ctx, deploymentName, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		return deployment.Status.AvailableReplicas > 0, nil
	})
}
