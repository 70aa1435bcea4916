package config

import (
	"net/url"
	"os"
	"sync"
)

const dockerHostGateway = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a Docker container.
// Detection is based on /.dockerenv and cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when
// running in Docker so that services on the host machine stay reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

// ResolveURLForDocker applies ResolveHostForDocker to the host part of an
// endpoint URL such as the LLM endpoint. Unparseable input is returned as-is.
func ResolveURLForDocker(raw string) string {
	return resolveURL(raw, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return dockerHostGateway
	}
	return host
}

func resolveURL(raw string, inDocker bool) string {
	if !inDocker || raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := u.Hostname()
	resolved := resolveHost(host, inDocker)
	if resolved == host {
		return raw
	}
	if port := u.Port(); port != "" {
		u.Host = resolved + ":" + port
	} else {
		u.Host = resolved
	}
	return u.String()
}
