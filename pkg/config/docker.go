package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the service runs inside a container (/.dockerenv exists).
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites loopback profile hosts to host.docker.internal when
// running in a container, so that an accounting server installed on the host
// machine stays reachable. Other hosts and empty values (embedded sqlite) are
// returned unchanged.
func ResolveHostForDocker(host string) string {
	if host == "" || !IsRunningInDocker() {
		return host
	}

	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
