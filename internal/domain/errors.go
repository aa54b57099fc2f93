package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for node operations
var (
	// ErrNotConnected is returned when an RPC verb is used before Connect succeeded
	ErrNotConnected = errors.New("not connected to a Hardhat node")

	// ErrNotForked is returned by fork-only operations on a local session
	ErrNotForked = errors.New("provider is not running a forked network")

	// ErrProcessDied is returned when the owned node process exited unexpectedly
	ErrProcessDied = errors.New("hardhat node process exited unexpectedly")

	// ErrNoAvailablePort is returned when no ephemeral port could be claimed
	ErrNoAvailablePort = errors.New("unable to find an available port")

	// ErrInvalidHex is returned when a value cannot be converted to hex
	ErrInvalidHex = errors.New("value is not convertible to hex")

	// ErrNodeUnreachable is returned when an endpoint does not answer RPC
	ErrNodeUnreachable = errors.New("hardhat node is unreachable")
)

// ProviderError is a generic Hardhat provider failure.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DependencyMissingError means a required tool (npx, npm, node) is absent or broken.
type DependencyMissingError struct {
	Tool   string
	Reason string
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("could not use `%s` executable: %s. See the treb-hardhat README for install steps", e.Tool, e.Reason)
}

// NotInstalledError means Hardhat is not installed in the local project.
type NotInstalledError struct {
	Err error
}

func (e *NotInstalledError) Error() string {
	msg := "missing local Hardhat NPM package. See the treb-hardhat README for install steps. " +
		"Note: global installation of Hardhat will not work and you must be in your project's directory"
	if e.Err != nil {
		return fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *NotInstalledError) Unwrap() error { return e.Err }

// SubprocessError is a retryable failure while launching the node process.
type SubprocessError struct {
	Message string
	Err     error
}

func (e *SubprocessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// SubprocessTimeoutError is returned when the node did not become healthy in time.
type SubprocessTimeoutError struct {
	Endpoint string
	Timeout  time.Duration
}

func (e *SubprocessTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for Hardhat node at %s", e.Timeout, e.Endpoint)
}

// PortConflictError means something other than Hardhat answers on the target port.
type PortConflictError struct {
	Endpoint      string
	ClientVersion string
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("a process that is not a Hardhat node is running at host %s (client version %q)", e.Endpoint, e.ClientVersion)
}

// ConfigError is returned for invalid plugin settings.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Message)
}

// NoAvailablePortError lists the ports that were tried.
type NoAvailablePortError struct {
	Tried []int
}

func (e *NoAvailablePortError) Error() string {
	tried := make([]int, len(e.Tried))
	copy(tried, e.Tried)
	sort.Ints(tried)

	parts := make([]string, 0, len(tried))
	for _, p := range tried {
		parts = append(parts, strconv.Itoa(p))
	}
	return fmt.Sprintf("%s. Ports tried: %s", ErrNoAvailablePort, strings.Join(parts, ", "))
}

func (e *NoAvailablePortError) Unwrap() error { return ErrNoAvailablePort }

// IsFatalInstallError reports whether err means retrying cannot help.
func IsFatalInstallError(err error) bool {
	var missing *DependencyMissingError
	var notInstalled *NotInstalledError
	return errors.As(err, &missing) || errors.As(err, &notInstalled)
}

// IsRetryable reports whether a process start may be attempted again.
func IsRetryable(err error) bool {
	if err == nil || IsFatalInstallError(err) {
		return false
	}
	var subprocess *SubprocessError
	var timeout *SubprocessTimeoutError
	var conflict *PortConflictError
	return errors.As(err, &subprocess) || errors.As(err, &timeout) || errors.As(err, &conflict)
}
