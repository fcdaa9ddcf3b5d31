package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	filterstypes "github.com/docker/docker/api/types/filters"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/tlsconfig"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Configuration errors for the Docker backend.
var (
	// ErrNilOption indicates a nil option was provided.
	ErrNilOption = errors.New("nil option provided to scheduler configuration")

	// ErrInvalidHost indicates an invalid Docker host specification.
	ErrInvalidHost = errors.New("invalid Docker host specification")

	// ErrMissingTLSConfig indicates incomplete TLS configuration.
	ErrMissingTLSConfig = errors.New("TLS verification enabled but certificate paths not provided")

	// ErrInvalidQuantity indicates an unparseable resource quantity.
	ErrInvalidQuantity = errors.New("invalid resource quantity")
)

// Scan workloads run locked down: nobody user, read-only rootfs with a
// writable /tmp, no capabilities, no privilege escalation.
const (
	workloadUser     = "65534:65534"
	defaultPidsLimit = 128
	cancelGraceSecs  = 2
)

// Config controls the Docker workload backend.
type Config struct {
	// Host is the Docker daemon socket to connect to.
	Host string

	// APIVersion pins the Docker API version; empty uses negotiation.
	APIVersion string

	// TLSVerify enables TLS with the certificate paths below.
	TLSVerify   bool
	TLSCertPath string
	TLSKeyPath  string
	TLSCAPath   string

	// RequestTimeout bounds individual Docker API requests.
	RequestTimeout time.Duration

	// PingTimeout bounds daemon health checks.
	PingTimeout time.Duration

	// RetryCount and RetryDelay control client (re)creation attempts.
	RetryCount int
	RetryDelay time.Duration

	// CPUShares is the relative CPU weight (request semantics).
	CPUShares int64

	// NanoCPUs is the hard CPU limit in billionths of a core.
	NanoCPUs int64

	// MemoryBytes is the hard memory limit.
	MemoryBytes int64

	// MemoryReservationBytes is the soft memory limit.
	MemoryReservationBytes int64

	// PidsLimit caps processes inside the workload.
	PidsLimit int64

	// Platform pins the workload platform ("os/arch"); empty uses the
	// daemon default.
	Platform string

	// ExtraLabels are attached to every workload this backend creates.
	ExtraLabels map[string]string

	// Logger is the logger to use.
	Logger *logrus.Logger
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		Host:                   "unix:///var/run/docker.sock",
		RequestTimeout:         30 * time.Second,
		PingTimeout:            5 * time.Second,
		RetryCount:             3,
		RetryDelay:             500 * time.Millisecond,
		CPUShares:              1024,
		NanoCPUs:               1_000_000_000,
		MemoryBytes:            512 * 1024 * 1024,
		MemoryReservationBytes: 512 * 1024 * 1024 * 4 / 5,
		PidsLimit:              defaultPidsLimit,
		Logger:                 logrus.New(),
	}
}

// Option is a functional option for configuring the Docker backend.
type Option func(*Config) error

// WithHost sets the Docker daemon host.
func WithHost(host string) Option {
	return func(c *Config) error {
		if host == "" {
			return ErrInvalidHost
		}
		if !strings.HasPrefix(host, "unix://") && !strings.HasPrefix(host, "tcp://") &&
			!strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
			return fmt.Errorf("%w: host must start with unix://, tcp://, http://, or https://", ErrInvalidHost)
		}
		c.Host = host
		return nil
	}
}

// WithAPIVersion pins the Docker API version. Empty keeps negotiation.
func WithAPIVersion(version string) Option {
	return func(c *Config) error {
		c.APIVersion = version
		return nil
	}
}

// WithTLS enables TLS verification with the given certificate paths.
func WithTLS(certPath, keyPath, caPath string) Option {
	return func(c *Config) error {
		if certPath == "" || keyPath == "" || caPath == "" {
			return ErrMissingTLSConfig
		}
		c.TLSVerify = true
		c.TLSCertPath = certPath
		c.TLSKeyPath = keyPath
		c.TLSCAPath = caPath
		return nil
	}
}

// WithRequestTimeout sets the Docker API request timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.RequestTimeout = timeout
		return nil
	}
}

// WithRetry sets client creation retry parameters.
func WithRetry(count int, delay time.Duration) Option {
	return func(c *Config) error {
		if count < 0 || delay < 0 {
			return errors.New("retry parameters must be non-negative")
		}
		c.RetryCount = count
		c.RetryDelay = delay
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// WithResources sets workload resource limits from Kubernetes-style
// quantities ("500m", "512Mi"). Empty values keep the defaults. The CPU
// request maps to shares, the CPU limit to NanoCPUs, and the memory
// request/limit pair to reservation and hard limit.
func WithResources(cpuRequest, cpuLimit, memoryRequest, memoryLimit string) Option {
	return func(c *Config) error {
		if cpuRequest != "" {
			nano, err := parseCPUQuantity(cpuRequest)
			if err != nil {
				return err
			}
			c.CPUShares = nano * 1024 / 1_000_000_000
		}
		if cpuLimit != "" {
			nano, err := parseCPUQuantity(cpuLimit)
			if err != nil {
				return err
			}
			c.NanoCPUs = nano
		}
		if memoryLimit != "" {
			b, err := parseMemoryQuantity(memoryLimit)
			if err != nil {
				return err
			}
			c.MemoryBytes = b
			if memoryRequest == "" {
				c.MemoryReservationBytes = b * 4 / 5
			}
		}
		if memoryRequest != "" {
			b, err := parseMemoryQuantity(memoryRequest)
			if err != nil {
				return err
			}
			c.MemoryReservationBytes = b
		}
		return nil
	}
}

// WithPlatform pins the workload platform, e.g. "linux/amd64". Scanner
// images are usually multi-arch; pinning keeps report output comparable
// across mixed-architecture hosts.
func WithPlatform(platform string) Option {
	return func(c *Config) error {
		if platform != "" && !strings.Contains(platform, "/") {
			return errors.Errorf("platform must be os/arch, got %q", platform)
		}
		c.Platform = platform
		return nil
	}
}

// WithExtraLabels attaches labels to every workload this backend creates.
func WithExtraLabels(labels map[string]string) Option {
	return func(c *Config) error {
		if c.ExtraLabels == nil {
			c.ExtraLabels = make(map[string]string, len(labels))
		}
		for k, v := range labels {
			if k == "" {
				return errors.New("label key cannot be empty")
			}
			c.ExtraLabels[k] = v
		}
		return nil
	}
}

// DockerScheduler runs scan workloads as one-shot Docker containers.
type DockerScheduler struct {
	config Config
	log    *logrus.Logger

	mu     sync.RWMutex
	cli    *client.Client
	closed bool
}

var _ Scheduler = (*DockerScheduler)(nil)

// NewDockerScheduler creates a Docker workload backend. A daemon that is
// unreachable at construction time is tolerated; connection is retried on
// first use.
func NewDockerScheduler(opts ...Option) (*DockerScheduler, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		if err := opt(&config); err != nil {
			return nil, errors.Wrap(err, "option application failed")
		}
	}
	if config.TLSVerify && (config.TLSCertPath == "" || config.TLSKeyPath == "" || config.TLSCAPath == "") {
		return nil, ErrMissingTLSConfig
	}

	s := &DockerScheduler{config: config, log: config.Logger}

	if cli, err := s.createClient(context.Background()); err != nil {
		s.log.WithError(err).Warn("Initial Docker connection failed, will retry on demand")
	} else {
		s.cli = cli
	}
	return s, nil
}

// Submit creates and starts a hardened one-shot container for the job.
func (s *DockerScheduler) Submit(ctx context.Context, job Job) (string, error) {
	if err := ValidateJob(job); err != nil {
		return "", err
	}
	cli, err := s.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	log := s.log.WithFields(logrus.Fields{"workload": job.Name, "image": job.Image})

	if err := s.ensureImage(ctx, cli, job.Image); err != nil {
		return "", errors.Wrapf(err, "ensure image %s", job.Image)
	}

	pidsLimit := s.config.PidsLimit
	containerConfig := &containertypes.Config{
		Image:  job.Image,
		Cmd:    job.Command,
		Env:    buildEnv(job.Env),
		Labels: s.buildLabels(job),
		User:   workloadUser,
	}
	hostConfig := &containertypes.HostConfig{
		ReadonlyRootfs: true,
		SecurityOpt:    []string{"no-new-privileges=true"},
		CapDrop:        []string{"ALL"},
		Tmpfs:          map[string]string{"/tmp": "rw,nosuid"},
		RestartPolicy:  containertypes.RestartPolicy{Name: containertypes.RestartPolicyDisabled},
		Resources: containertypes.Resources{
			CPUShares:         s.config.CPUShares,
			NanoCPUs:          s.config.NanoCPUs,
			Memory:            s.config.MemoryBytes,
			MemoryReservation: s.config.MemoryReservationBytes,
			PidsLimit:         &pidsLimit,
		},
	}

	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, platformSpec(s.config.Platform), job.Name)
	if err != nil {
		if errdefs.IsConflict(err) {
			return "", fmt.Errorf("%w: workload %s already exists", ErrInvalidJob, job.Name)
		}
		return "", errors.Wrap(err, "create workload")
	}
	if err := cli.ContainerStart(ctx, resp.ID, containertypes.StartOptions{}); err != nil {
		if removeErr := cli.ContainerRemove(context.Background(), resp.ID, containertypes.RemoveOptions{Force: true}); removeErr != nil {
			log.WithError(removeErr).Warn("Failed to clean up unstartable workload")
		}
		return "", errors.Wrap(err, "start workload")
	}

	log.WithField("handle", truncateID(resp.ID)).Info("Scan workload started")
	return resp.ID, nil
}

// Status reports the workload's phase from a container inspect.
func (s *DockerScheduler) Status(ctx context.Context, handle string) (*JobStatus, error) {
	cli, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	inspect, err := cli.ContainerInspect(ctx, handle)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, handle)
		}
		return nil, errors.Wrap(err, "inspect workload")
	}

	status := &JobStatus{
		Handle: inspect.ID,
		Name:   strings.TrimPrefix(inspect.Name, "/"),
	}
	if inspect.State == nil {
		status.Phase = PhaseUnknown
		return status, nil
	}
	status.Phase, status.Message = phaseFromState(inspect.State)
	status.ExitCode = inspect.State.ExitCode
	status.StartedAt = parseDockerTime(inspect.State.StartedAt)
	status.FinishedAt = parseDockerTime(inspect.State.FinishedAt)
	return status, nil
}

// Logs returns the workload's demultiplexed output, stdout before stderr.
func (s *DockerScheduler) Logs(ctx context.Context, handle string, tailLines int) (string, error) {
	cli, err := s.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	tail := "all"
	if tailLines > 0 {
		tail = strconv.Itoa(tailLines)
	}
	reader, err := cli.ContainerLogs(ctx, handle, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrJobNotFound, handle)
		}
		return "", errors.Wrap(err, "fetch workload logs")
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", errors.Wrap(err, "demultiplex workload logs")
	}
	stdout.Write(stderr.Bytes())
	return stdout.String(), nil
}

// Cancel stops a running workload after a short grace period.
func (s *DockerScheduler) Cancel(ctx context.Context, handle string) error {
	cli, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	grace := cancelGraceSecs
	if err := cli.ContainerStop(ctx, handle, containertypes.StopOptions{Timeout: &grace}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, handle)
		}
		return errors.Wrap(err, "stop workload")
	}
	return nil
}

// Remove force-deletes a workload. Unknown handles are ignored so cleanup
// after ingestion stays idempotent.
func (s *DockerScheduler) Remove(ctx context.Context, handle string) error {
	cli, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	err = cli.ContainerRemove(ctx, handle, containertypes.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return errors.Wrap(err, "remove workload")
	}
	return nil
}

// Close releases the Docker client.
func (s *DockerScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.cli != nil {
		err := s.cli.Close()
		s.cli = nil
		return err
	}
	return nil
}

// ensureClient returns a healthy Docker client, recreating it with retries
// when the cached one fails its ping.
func (s *DockerScheduler) ensureClient(ctx context.Context) (*client.Client, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSchedulerClosed
	}
	if s.cli != nil {
		cli := s.cli
		pingCtx, cancel := context.WithTimeout(ctx, s.config.PingTimeout)
		_, err := cli.Ping(pingCtx)
		cancel()
		if err == nil {
			s.mu.RUnlock()
			return cli, nil
		}
		s.log.WithError(err).Warn("Docker client failed ping, recreating")
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}
	// Another goroutine may have recovered the client while we waited.
	if s.cli != nil {
		pingCtx, cancel := context.WithTimeout(ctx, s.config.PingTimeout)
		_, err := s.cli.Ping(pingCtx)
		cancel()
		if err == nil {
			return s.cli, nil
		}
		s.cli.Close()
		s.cli = nil
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.RetryCount; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cli, err := s.createClient(ctx)
		if err == nil {
			s.cli = cli
			return cli, nil
		}
		lastErr = err
		s.log.WithError(err).Warnf("Docker client creation failed (attempt %d/%d)", attempt+1, s.config.RetryCount+1)

		if attempt < s.config.RetryCount {
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, lastErr)
}

func (s *DockerScheduler) createClient(ctx context.Context) (*client.Client, error) {
	var opts []client.Opt

	if s.config.Host != "" {
		opts = append(opts, client.WithHost(s.config.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	if s.config.APIVersion != "" {
		opts = append(opts, client.WithVersion(s.config.APIVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	if s.config.TLSVerify {
		tlsClientConfig, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   s.config.TLSCAPath,
			CertFile: s.config.TLSCertPath,
			KeyFile:  s.config.TLSKeyPath,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingTLSConfig, err)
		}
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsClientConfig},
			Timeout:   s.config.RequestTimeout,
		}))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create Docker client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.config.PingTimeout)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, errors.Wrap(err, "ping Docker daemon")
	}
	return cli, nil
}

// ensureImage pulls the scanner image when it is not present locally.
func (s *DockerScheduler) ensureImage(ctx context.Context, cli *client.Client, image string) error {
	filter := filterstypes.NewArgs()
	filter.Add("reference", image)

	images, err := cli.ImageList(ctx, imagetypes.ListOptions{Filters: filter})
	if err != nil {
		return errors.Wrap(err, "list images")
	}
	if len(images) > 0 {
		return nil
	}

	s.log.WithField("image", image).Info("Pulling scanner image")
	reader, err := cli.ImagePull(ctx, image, imagetypes.PullOptions{})
	if err != nil {
		return errors.Wrap(err, "pull image")
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return errors.Wrap(err, "read pull response")
	}
	return nil
}

func (s *DockerScheduler) buildLabels(job Job) map[string]string {
	labels := map[string]string{LabelManaged: "true"}
	for k, v := range s.config.ExtraLabels {
		labels[k] = v
	}
	for k, v := range job.Labels {
		labels[k] = v
	}
	if job.Timeout > 0 {
		labels[LabelDeadline] = time.Now().UTC().Add(job.Timeout).Format(time.RFC3339)
	}
	return labels
}

// platformSpec turns an "os/arch" string into the create-time platform pin.
// Nil lets the daemon pick.
func platformSpec(platform string) *ocispec.Platform {
	if platform == "" {
		return nil
	}
	parts := strings.SplitN(platform, "/", 3)
	if len(parts) < 2 {
		return nil
	}
	spec := &ocispec.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		spec.Variant = parts[2]
	}
	return spec
}

// buildEnv flattens the env map into sorted KEY=value pairs so container
// creation is deterministic.
func buildEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func phaseFromState(state *types.ContainerState) (Phase, string) {
	switch state.Status {
	case "created":
		return PhasePending, ""
	case "running", "paused", "restarting", "removing":
		return PhaseRunning, ""
	case "exited", "dead":
		if state.OOMKilled {
			return PhaseFailed, "out of memory"
		}
		if state.ExitCode == 0 {
			return PhaseSucceeded, ""
		}
		msg := state.Error
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", state.ExitCode)
		}
		return PhaseFailed, msg
	default:
		return PhaseUnknown, state.Status
	}
}

// parseDockerTime parses the RFC3339Nano timestamps the Engine API reports.
// Docker uses year-one timestamps for unset values.
func parseDockerTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil || t.Year() == 1 {
		return time.Time{}
	}
	return t.UTC()
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// parseCPUQuantity converts a Kubernetes-style CPU quantity ("500m", "2",
// "1.5") into NanoCPUs.
func parseCPUQuantity(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "m") {
		milli, err := strconv.ParseInt(strings.TrimSuffix(value, "m"), 10, 64)
		if err != nil || milli <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
		}
		return milli * 1_000_000, nil
	}
	cores, err := strconv.ParseFloat(value, 64)
	if err != nil || cores <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
	}
	return int64(cores * 1_000_000_000), nil
}

// parseMemoryQuantity converts a Kubernetes-style memory quantity ("512Mi",
// "1Gi", "256M", plain bytes) into bytes.
func parseMemoryQuantity(value string) (int64, error) {
	value = strings.TrimSpace(value)
	multipliers := []struct {
		suffix string
		factor int64
	}{
		{"Ki", 1024},
		{"Mi", 1024 * 1024},
		{"Gi", 1024 * 1024 * 1024},
		{"K", 1000},
		{"M", 1000 * 1000},
		{"G", 1000 * 1000 * 1000},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(value, m.suffix) {
			n, err := strconv.ParseInt(strings.TrimSuffix(value, m.suffix), 10, 64)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
			}
			return n * m.factor, nil
		}
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
	}
	return n, nil
}
