/*
Copyright 2025 The KServe Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package kubernetes

import (
	"context"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/constants"
	"github.com/kserve/infravalidator/pkg/credentials"
	"github.com/kserve/infravalidator/pkg/runtime"
	"github.com/kserve/infravalidator/pkg/servingbinary"
)

var log = logf.Log.WithName("kubernetes-runtime")

const runtimeName = "kubernetes"

// Waiting reasons after which a container will not start without intervention.
var crashedWaitingReasons = map[string]bool{
	"ErrImagePull":               true,
	"ImagePullBackOff":           true,
	"InvalidImageName":           true,
	"CrashLoopBackOff":           true,
	"CreateContainerConfigError": true,
	"CreateContainerError":       true,
	"RunContainerError":          true,
}

// NewClientset builds a clientset from the kubeconfig or the in-cluster configuration.
func NewClientset() (kubernetes.Interface, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, errors.Wrap(err, "unable to load kubernetes configuration")
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create kubernetes client")
	}
	return clientset, nil
}

// Pod is a sandbox running as a bare pod.
type Pod struct {
	PodName   string
	Namespace string
	Port      int32

	mu       sync.Mutex
	released bool
}

var _ runtime.Sandbox = (*Pod)(nil)

func (p *Pod) Name() string {
	return p.PodName
}

// Runtime runs model servers as pods. A storage-initializer init container downloads the model into an
// emptyDir shared with the model server, so the pod never reads from the machine running the validation.
type Runtime struct {
	Client kubernetes.Interface
	Config v1alpha1.KubernetesConfig
}

var _ runtime.Runtime = (*Runtime)(nil)

func (r *Runtime) namespace() string {
	if r.Config.Namespace == "" {
		return constants.DefaultKubernetesNS
	}
	return r.Config.Namespace
}

func labelValue(value string) string {
	value = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, value)
	if len(value) > validation.LabelValueMaxLength {
		value = value[:validation.LabelValueMaxLength]
	}
	return strings.Trim(value, "-_.")
}

// BuildPod renders the pod spec of a sandbox.
func (r *Runtime) BuildPod(name string, binary servingbinary.ServingBinary, model runtime.ModelArtifact) *corev1.Pod {
	spec := binary.Container(constants.SandboxModelMountPath)

	labels := map[string]string{}
	for key, value := range r.Config.Labels {
		labels[key] = value
	}
	labels[constants.SandboxComponentLabel] = constants.SandboxComponentValue
	labels[constants.SandboxManagedByLabel] = constants.InfraValidatorName
	labels[constants.SandboxBinaryLabelKey] = labelValue(string(binary.Flavor.Type()))
	labels[constants.SandboxVersionLabelKey] = labelValue(binary.Version())

	env := make([]corev1.EnvVar, 0, len(spec.Env))
	for _, pair := range spec.SortedEnv() {
		key, value, _ := strings.Cut(pair, "=")
		env = append(env, corev1.EnvVar{Name: key, Value: value})
	}

	initializerImage := r.Config.StorageInitializerImage
	if initializerImage == "" {
		initializerImage = constants.DefaultStorageInitializer
	}
	modelVolumeMount := corev1.VolumeMount{Name: constants.ModelVolumeName, MountPath: constants.SandboxModelMountPath}
	readOnlyModelMount := modelVolumeMount
	readOnlyModelMount.ReadOnly = true

	var readinessProbe *corev1.Probe
	if spec.ReadinessPath != "" {
		readinessProbe = &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: spec.ReadinessPath,
					Port: intstr.FromInt32(spec.Port),
				},
			},
			PeriodSeconds:    1,
			FailureThreshold: 3,
		}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   r.namespace(),
			Labels:      labels,
			Annotations: r.Config.Annotations,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:         corev1.RestartPolicyNever,
			ServiceAccountName:    r.Config.ServiceAccountName,
			NodeSelector:          r.Config.NodeSelector,
			Tolerations:           r.Config.Tolerations,
			ImagePullSecrets:      r.Config.ImagePullSecrets,
			ActiveDeadlineSeconds: r.Config.ActiveDeadlineSeconds,
			InitContainers: []corev1.Container{{
				Name:         constants.StorageInitializerName,
				Image:        initializerImage,
				Args:         []string{model.URI, path.Join(constants.SandboxModelMountPath, binary.ModelSubPath())},
				VolumeMounts: []corev1.VolumeMount{modelVolumeMount},
			}},
			Containers: []corev1.Container{{
				Name:    constants.ModelServerContainerName,
				Image:   spec.Image,
				Command: spec.Command,
				Args:    spec.Args,
				Env:     env,
				Ports: []corev1.ContainerPort{{
					Name:          "http",
					ContainerPort: spec.Port,
					Protocol:      corev1.ProtocolTCP,
				}},
				Resources:      r.Config.Resources,
				ReadinessProbe: readinessProbe,
				VolumeMounts:   []corev1.VolumeMount{readOnlyModelMount},
			}},
			Volumes: []corev1.Volume{{
				Name:         constants.ModelVolumeName,
				VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
			}},
			TerminationGracePeriodSeconds: ptr.To(int64(0)),
		},
	}
}

func (r *Runtime) Provision(ctx context.Context, binary servingbinary.ServingBinary, model runtime.ModelArtifact) (runtime.Sandbox, error) {
	if model.URI == "" {
		return nil, errors.New("model URI is required to provision a pod")
	}
	name := constants.SandboxName(string(binary.Flavor.Type()), uuid.New().String()[:8])
	pod := r.BuildPod(name, binary, model)
	builder := credentials.NewCredentialBuilder(r.Client, r.Config.StorageCredentials)
	if err := builder.CreateSecretVolumeAndEnv(ctx, pod.Namespace, r.Config.ServiceAccountName,
		&pod.Spec.InitContainers[0], &pod.Spec.Volumes); err != nil {
		return nil, errors.Wrap(err, "failed to attach storage credentials")
	}
	created, err := r.Client.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create pod %s/%s", pod.Namespace, name)
	}
	log.Info("Created model server pod", "namespace", created.Namespace, "pod", created.Name, "image", binary.Image())
	return &Pod{PodName: created.Name, Namespace: created.Namespace, Port: binary.Container(constants.SandboxModelMountPath).Port}, nil
}

func (r *Runtime) sandbox(sandbox runtime.Sandbox) (*Pod, error) {
	p, ok := sandbox.(*Pod)
	if !ok {
		return nil, &runtime.SandboxMismatchError{Runtime: runtimeName, Sandbox: sandbox}
	}
	return p, nil
}

func (r *Runtime) PollReady(ctx context.Context, sandbox runtime.Sandbox) (runtime.Status, error) {
	p, err := r.sandbox(sandbox)
	if err != nil {
		return runtime.Status{}, err
	}
	pod, err := r.Client.CoreV1().Pods(p.Namespace).Get(ctx, p.PodName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return runtime.CrashedStatus("pod %s/%s no longer exists", p.Namespace, p.PodName), nil
		}
		return runtime.Status{}, errors.Wrapf(err, "failed to get pod %s/%s", p.Namespace, p.PodName)
	}
	return podStatus(pod, p.Port), nil
}

func podStatus(pod *corev1.Pod, port int32) runtime.Status {
	switch pod.Status.Phase {
	case corev1.PodFailed, corev1.PodSucceeded:
		return runtime.Status{Phase: runtime.Crashed, Diagnostics: podDiagnostics(pod)}
	case corev1.PodPending, corev1.PodRunning:
		if reason := stuckReason(pod); reason != "" {
			return runtime.Status{Phase: runtime.Crashed, Diagnostics: reason + "\n" + podDiagnostics(pod)}
		}
	}
	if pod.Status.Phase != corev1.PodRunning || pod.Status.PodIP == "" || !podReady(pod) {
		return runtime.NotReadyStatus()
	}
	return runtime.ReadyStatus(net.JoinHostPort(pod.Status.PodIP, strconv.Itoa(int(port))))
}

func podReady(pod *corev1.Pod) bool {
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

// stuckReason reports a container that failed or can never start.
func stuckReason(pod *corev1.Pod) string {
	statuses := append(append([]corev1.ContainerStatus{}, pod.Status.InitContainerStatuses...), pod.Status.ContainerStatuses...)
	for _, status := range statuses {
		if waiting := status.State.Waiting; waiting != nil && crashedWaitingReasons[waiting.Reason] {
			return fmt.Sprintf("container %s is waiting: %s %s", status.Name, waiting.Reason, waiting.Message)
		}
		if terminated := status.State.Terminated; terminated != nil && terminated.ExitCode != 0 {
			return fmt.Sprintf("container %s terminated with exit code %d: %s", status.Name, terminated.ExitCode, terminated.Reason)
		}
	}
	return ""
}

func podDiagnostics(pod *corev1.Pod) string {
	lines := []string{fmt.Sprintf("pod %s/%s is %s", pod.Namespace, pod.Name, pod.Status.Phase)}
	if pod.Status.Reason != "" || pod.Status.Message != "" {
		lines = append(lines, strings.TrimSpace(pod.Status.Reason+" "+pod.Status.Message))
	}
	statuses := append(append([]corev1.ContainerStatus{}, pod.Status.InitContainerStatuses...), pod.Status.ContainerStatuses...)
	for _, status := range statuses {
		if terminated := status.State.Terminated; terminated != nil {
			line := fmt.Sprintf("%s: exit code %d %s", status.Name, terminated.ExitCode, terminated.Reason)
			if terminated.Message != "" {
				line += ": " + terminated.Message
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (r *Runtime) Release(ctx context.Context, sandbox runtime.Sandbox) error {
	p, err := r.sandbox(sandbox)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return nil
	}
	err = r.Client.CoreV1().Pods(p.Namespace).Delete(ctx, p.PodName, metav1.DeleteOptions{
		GracePeriodSeconds: ptr.To(int64(0)),
		PropagationPolicy:  ptr.To(metav1.DeletePropagationBackground),
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "failed to delete pod %s/%s", p.Namespace, p.PodName)
	}
	p.released = true
	log.Info("Deleted model server pod", "namespace", p.Namespace, "pod", p.PodName)
	return nil
}
