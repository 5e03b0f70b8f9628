package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExecResult is the outcome of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ContainerRuntime is the container lifecycle surface the Sandbox Manager
// drives. The only implementation in production shells out to the docker
// CLI; tests substitute a fake.
type ContainerRuntime interface {
	// Run creates and starts a new long-lived named container, returning
	// its container id.
	Run(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	// Start starts an existing stopped container by name.
	Start(ctx context.Context, name string) error
	// Stop stops a running container by name, waiting up to the given
	// grace period before killing it.
	Stop(ctx context.Context, name string) error
	// Inspect reports whether a container with the given name exists, and
	// if so whether it is running.
	Inspect(ctx context.Context, name string) (info ContainerInfo, found bool, err error)
	// Exec runs a shell command inside a running container.
	Exec(ctx context.Context, name string, cwd string, command string, env map[string]string) (ExecResult, error)
}

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name            string
	Image           string
	WorkspacePath   string
	CPULimit        string
	MemoryLimit     string
	MemorySwapLimit string
	PIDsLimit       int
	NofileUlimit    int
	NetworkMode     string
	StartCommand    []string
	PortMap         map[int]int // container port -> host port
	Env             map[string]string
}

// ContainerInfo is a container's observed state.
type ContainerInfo struct {
	ContainerID string
	Running     bool
	PortMap     map[int]int // container port -> host port
}

// DockerCLIRuntime drives containers through the docker binary via
// os/exec.CommandContext, the same style internal/tools/exec uses for its
// own subprocess management — no Docker SDK is linked.
type DockerCLIRuntime struct {
	// Binary is the docker executable name or path. Defaults to "docker".
	Binary string
}

// NewDockerCLIRuntime returns a runtime that shells out to "docker".
func NewDockerCLIRuntime() *DockerCLIRuntime {
	return &DockerCLIRuntime{Binary: "docker"}
}

func (d *DockerCLIRuntime) bin() string {
	if d.Binary == "" {
		return "docker"
	}
	return d.Binary
}

func (d *DockerCLIRuntime) run(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, d.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Run implements ContainerRuntime.
func (d *DockerCLIRuntime) Run(ctx context.Context, spec ContainerSpec) (string, error) {
	args := []string{"run", "-d", "--name", spec.Name, "-v", spec.WorkspacePath + ":/workspace"}
	if spec.CPULimit != "" {
		args = append(args, "--cpus", spec.CPULimit)
	}
	if spec.MemoryLimit != "" {
		args = append(args, "--memory", spec.MemoryLimit)
	}
	if spec.MemorySwapLimit != "" {
		args = append(args, "--memory-swap", spec.MemorySwapLimit)
	}
	if spec.PIDsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(spec.PIDsLimit))
	}
	if spec.NofileUlimit > 0 {
		args = append(args, "--ulimit", "nofile="+strconv.Itoa(spec.NofileUlimit))
	}
	switch spec.NetworkMode {
	case "", "none":
		args = append(args, "--network", "none")
	case "default":
		// no --network flag: default bridge network
	default:
		args = append(args, "--network", spec.NetworkMode)
	}
	for containerPort, hostPort := range spec.PortMap {
		args = append(args, "-p", fmt.Sprintf("%d:%d", hostPort, containerPort))
	}
	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, spec.Image)
	args = append(args, spec.StartCommand...)

	stdout, stderr, err := d.run(ctx, args...)
	if err != nil {
		if strings.Contains(stderr, "port is already allocated") || strings.Contains(stderr, "address already in use") {
			return "", fmt.Errorf("port collision: %s", strings.TrimSpace(stderr))
		}
		return "", fmt.Errorf("docker run: %s", strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// Start implements ContainerRuntime.
func (d *DockerCLIRuntime) Start(ctx context.Context, name string) error {
	_, stderr, err := d.run(ctx, "start", name)
	if err != nil {
		return fmt.Errorf("docker start: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// Stop implements ContainerRuntime.
func (d *DockerCLIRuntime) Stop(ctx context.Context, name string) error {
	_, stderr, err := d.run(ctx, "stop", name)
	if err != nil {
		return fmt.Errorf("docker stop: %s", strings.TrimSpace(stderr))
	}
	return nil
}

// Inspect implements ContainerRuntime.
func (d *DockerCLIRuntime) Inspect(ctx context.Context, name string) (ContainerInfo, bool, error) {
	stdout, stderr, err := d.run(ctx, "inspect",
		"--format", "{{.Id}}|{{.State.Running}}|{{json .NetworkSettings.Ports}}", name)
	if err != nil {
		if strings.Contains(stderr, "No such object") || strings.Contains(stderr, "no such container") {
			return ContainerInfo{}, false, nil
		}
		return ContainerInfo{}, false, fmt.Errorf("docker inspect: %s", strings.TrimSpace(stderr))
	}
	fields := strings.SplitN(strings.TrimSpace(stdout), "|", 3)
	if len(fields) < 2 {
		return ContainerInfo{}, false, fmt.Errorf("docker inspect: unexpected output %q", stdout)
	}
	info := ContainerInfo{ContainerID: fields[0], Running: fields[1] == "true"}
	if len(fields) == 3 {
		info.PortMap = parseDockerPortBindings(fields[2])
	}
	return info, true, nil
}

// Exec implements ContainerRuntime.
func (d *DockerCLIRuntime) Exec(ctx context.Context, name string, cwd string, command string, env map[string]string) (ExecResult, error) {
	args := []string{"exec"}
	if cwd != "" {
		args = append(args, "-w", cwd)
	}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, name, "/bin/sh", "-c", command)

	cmd := exec.CommandContext(ctx, d.bin(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("docker exec: %w", runErr)
}

// parseDockerPortBindings extracts a container-port -> host-port map from
// `docker inspect`'s NetworkSettings.Ports JSON shape:
// {"3000/tcp":[{"HostIp":"0.0.0.0","HostPort":"41000"}], ...}
func parseDockerPortBindings(raw string) map[int]int {
	out := map[int]int{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return out
	}
	var bindings map[string][]struct {
		HostPort string `json:"HostPort"`
	}
	if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
		return out
	}
	for key, hostBindings := range bindings {
		if len(hostBindings) == 0 {
			continue
		}
		containerPort, err := strconv.Atoi(strings.TrimSuffix(key, "/tcp"))
		if err != nil {
			continue
		}
		hostPort, err := strconv.Atoi(hostBindings[0].HostPort)
		if err != nil {
			continue
		}
		out[containerPort] = hostPort
	}
	return out
}
