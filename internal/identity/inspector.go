// Package identity validates the caller of the decision engine: the shared
// internal token and the runtime fingerprint of the sandbox the request
// came from.
package identity

import (
	"context"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
)

// Sentinel fingerprints. FingerprintUnknown means no container owns the
// address (host client, test harness); FingerprintError means inspection
// itself failed and the caller must fail closed.
const (
	FingerprintUnknown = "UNKNOWN"
	FingerprintError   = "ERROR"
)

// RuntimeInspector resolves a network address to the image digest of the
// container attached to it.
type RuntimeInspector interface {
	ContainerIdentity(ctx context.Context, addr string) string
}

// DockerInspector implements RuntimeInspector against the local Docker
// daemon. Resolutions are cached per address (bounded LRU); inspection
// errors are never cached.
type DockerInspector struct {
	cli   *client.Client
	cache *addressCache
}

// NewDockerInspector connects to the Docker socket via the standard
// environment (DOCKER_HOST etc).
func NewDockerInspector() (*DockerInspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerInspector{
		cli:   cli,
		cache: newAddressCache(128),
	}, nil
}

// ContainerIdentity scans running containers for a network endpoint bound
// to addr and returns that container's image digest.
func (d *DockerInspector) ContainerIdentity(ctx context.Context, addr string) string {
	if fp, ok := d.cache.Get(addr); ok {
		pipeline.CacheHits.WithLabelValues("identity").Inc()
		return fp
	}

	containers, err := d.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		slog.Error("Container inspection failed", "addr", addr, "error", err)
		return FingerprintError
	}

	for _, c := range containers {
		if c.NetworkSettings == nil {
			continue
		}
		for _, endpoint := range c.NetworkSettings.Networks {
			if endpoint != nil && endpoint.IPAddress == addr {
				slog.Info("Runtime identity resolved", "addr", addr, "image", c.ImageID)
				d.cache.Set(addr, c.ImageID)
				return c.ImageID
			}
		}
	}

	slog.Warn("No container found for address", "addr", addr)
	d.cache.Set(addr, FingerprintUnknown)
	return FingerprintUnknown
}

// StaticInspector always answers with one fingerprint. It backs tests and
// the dev fallback when no Docker socket is reachable.
type StaticInspector struct {
	Fingerprint string
}

func (s StaticInspector) ContainerIdentity(context.Context, string) string {
	return s.Fingerprint
}

