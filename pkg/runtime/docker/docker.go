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

package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/constants"
	"github.com/kserve/infravalidator/pkg/runtime"
	"github.com/kserve/infravalidator/pkg/servingbinary"
	"github.com/kserve/infravalidator/pkg/storage"
)

var log = logf.Log.WithName("docker-runtime")

const (
	runtimeName        = "local_docker"
	containerModelRoot = "/model"
	loopbackHostIP     = "127.0.0.1"
	diagnosticsTail    = "50"

	stateCreated    = "created"
	stateRunning    = "running"
	stateRestarting = "restarting"
)

// DockerAPI is the subset of the docker client used to run sandboxes.
type DockerAPI interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ DockerAPI = (*client.Client)(nil)

// NewClient connects to the docker daemon from the environment, or to the configured host and API version.
func NewClient(cfg *v1alpha1.LocalDockerConfig) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv}
	if cfg != nil && cfg.DockerHost != "" {
		opts = append(opts, client.WithHost(cfg.DockerHost))
	}
	if cfg != nil && cfg.ClientVersion != "" {
		opts = append(opts, client.WithVersion(cfg.ClientVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create docker client")
	}
	return cli, nil
}

// Container is a sandbox running as a local docker container.
type Container struct {
	ID       string
	name     string
	StageDir string
	Port     nat.Port

	mu       sync.Mutex
	released bool
}

var _ runtime.Sandbox = (*Container)(nil)

func (c *Container) Name() string {
	return c.name
}

// Runtime runs model servers as containers of the local docker daemon. The model is copied into a staging
// directory laid out the way the serving binary expects and bind mounted read only.
type Runtime struct {
	Client    DockerAPI
	WorkDir   string
	PullImage bool
	// HostIP the container port is published on, loopback by default.
	HostIP string
}

var _ runtime.Runtime = (*Runtime)(nil)

func (r *Runtime) hostIP() string {
	if r.HostIP == "" {
		return loopbackHostIP
	}
	return r.HostIP
}

func (r *Runtime) Provision(ctx context.Context, binary servingbinary.ServingBinary, model runtime.ModelArtifact) (runtime.Sandbox, error) {
	if model.LocalPath == "" {
		return nil, errors.Errorf("model %s has not been staged locally", model.URI)
	}
	name := constants.SandboxName(string(binary.Flavor.Type()), uuid.New().String()[:8])
	logger := log.WithValues("sandbox", name, "image", binary.Image())

	stageDir := filepath.Join(r.WorkDir, name)
	if err := storage.CopyDir(model.LocalPath, filepath.Join(stageDir, filepath.FromSlash(binary.ModelSubPath()))); err != nil {
		_ = os.RemoveAll(stageDir)
		return nil, errors.Wrapf(err, "failed to stage model for %s", name)
	}

	if r.PullImage {
		logger.Info("Pulling image")
		if err := r.pull(ctx, binary.Image()); err != nil {
			_ = os.RemoveAll(stageDir)
			return nil, err
		}
	}

	spec := binary.Container(containerModelRoot)
	port, err := nat.NewPort("tcp", strconv.Itoa(int(spec.Port)))
	if err != nil {
		_ = os.RemoveAll(stageDir)
		return nil, errors.Wrap(err, "invalid container port")
	}
	config := &container.Config{
		Image:        spec.Image,
		Env:          spec.SortedEnv(),
		Entrypoint:   spec.Command,
		Cmd:          spec.Args,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			constants.SandboxComponentLabel:  constants.SandboxComponentValue,
			constants.SandboxManagedByLabel:  constants.InfraValidatorName,
			constants.SandboxBinaryLabelKey:  string(binary.Flavor.Type()),
			constants.SandboxVersionLabelKey: binary.Version(),
		},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{port: []nat.PortBinding{{HostIP: r.hostIP()}}},
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   stageDir,
			Target:   containerModelRoot,
			ReadOnly: true,
		}},
	}

	created, err := r.Client.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		_ = os.RemoveAll(stageDir)
		return nil, errors.Wrapf(err, "failed to create container %s", name)
	}
	sandbox := &Container{ID: created.ID, name: name, StageDir: stageDir, Port: port}
	if err := r.Client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		if releaseErr := r.Release(context.WithoutCancel(ctx), sandbox); releaseErr != nil {
			logger.Error(releaseErr, "Failed to remove container that did not start")
		}
		return nil, errors.Wrapf(err, "failed to start container %s", name)
	}
	logger.Info("Started model server container", "id", created.ID)
	return sandbox, nil
}

func (r *Runtime) pull(ctx context.Context, ref string) error {
	progress, err := r.Client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed to pull image %s", ref)
	}
	defer progress.Close()
	if _, err := io.Copy(io.Discard, progress); err != nil {
		return errors.Wrapf(err, "failed to pull image %s", ref)
	}
	return nil
}

func (r *Runtime) sandbox(sandbox runtime.Sandbox) (*Container, error) {
	c, ok := sandbox.(*Container)
	if !ok {
		return nil, &runtime.SandboxMismatchError{Runtime: runtimeName, Sandbox: sandbox}
	}
	return c, nil
}

func (r *Runtime) PollReady(ctx context.Context, sandbox runtime.Sandbox) (runtime.Status, error) {
	c, err := r.sandbox(sandbox)
	if err != nil {
		return runtime.Status{}, err
	}
	inspect, err := r.Client.ContainerInspect(ctx, c.ID)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return runtime.CrashedStatus("container %s no longer exists", c.name), nil
		}
		return runtime.Status{}, errors.Wrapf(err, "failed to inspect container %s", c.name)
	}
	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return runtime.NotReadyStatus(), nil
	}

	state := inspect.State
	switch string(state.Status) {
	case stateCreated, stateRestarting:
		return runtime.NotReadyStatus(), nil
	case stateRunning:
		address := r.address(inspect, c.Port)
		if address == "" {
			return runtime.NotReadyStatus(), nil
		}
		return runtime.ReadyStatus(address), nil
	}

	diagnostics := fmt.Sprintf("container %s is %s with exit code %d", c.name, state.Status, state.ExitCode)
	if state.OOMKilled {
		diagnostics += ", killed for running out of memory"
	}
	if state.Error != "" {
		diagnostics += ": " + state.Error
	}
	if logs := r.logs(ctx, c.ID); logs != "" {
		diagnostics += "\n" + logs
	}
	return runtime.Status{Phase: runtime.Crashed, Diagnostics: diagnostics}, nil
}

func (r *Runtime) address(inspect container.InspectResponse, port nat.Port) string {
	if inspect.NetworkSettings == nil {
		return ""
	}
	for _, binding := range inspect.NetworkSettings.Ports[port] {
		if binding.HostPort == "" {
			continue
		}
		host := binding.HostIP
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = loopbackHostIP
		}
		return net.JoinHostPort(host, binding.HostPort)
	}
	return ""
}

// logs returns the tail of the container output, best effort.
func (r *Runtime) logs(ctx context.Context, id string) string {
	reader, err := r.Client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: diagnosticsTail})
	if err != nil {
		return ""
	}
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	demuxed := new(bytes.Buffer)
	if _, err := stdcopy.StdCopy(demuxed, demuxed, bytes.NewReader(raw)); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(demuxed.String())
}

func (r *Runtime) Release(ctx context.Context, sandbox runtime.Sandbox) error {
	c, err := r.sandbox(sandbox)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	err = r.Client.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return errors.Wrapf(err, "failed to remove container %s", c.name)
	}
	if err := os.RemoveAll(c.StageDir); err != nil {
		log.Error(err, "Failed to clean up staged model", "dir", c.StageDir)
	}
	c.released = true
	log.Info("Removed model server container", "sandbox", c.name)
	return nil
}
