package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPort is the port Hardhat binds when nothing else is configured
	DefaultPort = 8545
	// DefaultHost is the loopback address the node is always bound to
	DefaultHost = "127.0.0.1"
	// HardhatChainID is the fixed chain id of a local Hardhat network
	HardhatChainID = 31337
	// AutoHost selects a random ephemeral port on localhost
	AutoHost = "auto"

	// EphemeralPortStart and EphemeralPortEnd bound auto-assigned ports
	EphemeralPortStart = 49152
	EphemeralPortEnd   = 60999
)

// ConnectionEndpoint is the resolved address of a Hardhat node
type ConnectionEndpoint struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port,omitempty"`
	// Path and RawQuery address hosted RPC gateways such as /v3/<key>
	Path     string `json:"path,omitempty"`
	RawQuery string `json:"-"`
	// Auto marks endpoints drawn from the ephemeral range
	Auto bool `json:"auto,omitempty"`
	// UserInfo is kept out of log output, see CleanURI
	UserInfo *url.Userinfo `json:"-"`
}

// NewLocalEndpoint returns an http endpoint on the loopback host
func NewLocalEndpoint(port int) ConnectionEndpoint {
	return ConnectionEndpoint{Scheme: "http", Host: DefaultHost, Port: port}
}

// ParseEndpoint parses a fully qualified URI into an endpoint
func ParseEndpoint(uri string) (ConnectionEndpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return ConnectionEndpoint{}, fmt.Errorf("invalid host %q: %w", uri, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return ConnectionEndpoint{}, fmt.Errorf("invalid host %q: missing scheme or hostname", uri)
	}

	ep := ConnectionEndpoint{
		Scheme:   u.Scheme,
		Host:     u.Hostname(),
		Path:     u.Path,
		RawQuery: u.RawQuery,
		UserInfo: u.User,
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return ConnectionEndpoint{}, fmt.Errorf("invalid port in host %q: %w", uri, err)
		}
		ep.Port = port
	}
	return ep, nil
}

// URI returns the full connection URI
func (e ConnectionEndpoint) URI() string {
	u := url.URL{Scheme: e.Scheme, Host: e.hostPort(), Path: e.Path, RawQuery: e.RawQuery, User: e.UserInfo}
	return u.String()
}

// CleanURI returns the URI without credentials or query, safe for logs
func (e ConnectionEndpoint) CleanURI() string {
	u := url.URL{Scheme: e.Scheme, Host: e.hostPort(), Path: e.Path}
	return u.String()
}

// IsZero reports whether the endpoint was never resolved
func (e ConnectionEndpoint) IsZero() bool {
	return e.Host == "" && e.Port == 0
}

// IsLocal reports whether the endpoint is a loopback address
func (e ConnectionEndpoint) IsLocal() bool {
	return IsLoopbackHost(e.Host)
}

func (e ConnectionEndpoint) hostPort() string {
	if e.Port == 0 {
		return e.Host
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// IsLoopbackHost reports whether host names the local machine
func IsLoopbackHost(host string) bool {
	h := strings.ToLower(host)
	return strings.Contains(h, "127.0.0.1") || strings.Contains(h, "localhost")
}

// HostSettings carries everything that can influence endpoint resolution
type HostSettings struct {
	// OverrideHost comes from connection settings supplied at call time
	OverrideHost string
	// OverridePort is the deprecated per-call port setting
	OverridePort int
	// Host is the plugin-level host setting, possibly "auto"
	Host string
	// Port is the deprecated plugin-level port setting ("", "auto" or a number)
	Port string
}

// NodeConfig is rendered into the Hardhat config file
type NodeConfig struct {
	Mnemonic         string
	HDPath           string
	NumberOfAccounts int
	// AccountsBalance is a wei amount in decimal
	AccountsBalance string
	Hardfork        string
}

// NodeCommand is a fully built command line for the node process
type NodeCommand struct {
	Runtime string
	Binary  string
	Args    []string
	Dir     string
	LogFile string
}

// Argv returns the command line as executed
func (c NodeCommand) Argv() []string {
	argv := []string{c.Runtime}
	if c.Binary != "" {
		argv = append(argv, c.Binary)
	}
	return append(argv, c.Args...)
}

// InstallState tracks how confident we are that Hardhat is installed locally
type InstallState int

const (
	// InstallUnknown means no check has run yet
	InstallUnknown InstallState = iota
	// InstallVerified means npm reported hardhat as a project dependency
	InstallVerified
	// InstallUncertain means the npm manifest lookup failed or lacked hardhat
	InstallUncertain
)

func (s InstallState) String() string {
	switch s {
	case InstallVerified:
		return "verified"
	case InstallUncertain:
		return "uncertain"
	default:
		return "unknown"
	}
}

// InstallCheck is the result of locating the Hardhat toolchain
type InstallCheck struct {
	// Runtime is the executable used to run the Hardhat binary (node or npx)
	Runtime string
	Version string
	State   InstallState
}

// SessionState is the lifecycle of one provider session
type SessionState string

const (
	StateNotStarted     SessionState = "not started"
	StateProbing        SessionState = "probing"
	StateSpawning       SessionState = "spawning"
	StateWaitingHealthy SessionState = "waiting healthy"
	StateAttaching      SessionState = "attaching"
	StateHealthy        SessionState = "healthy"
	StateStopping       SessionState = "stopping"
	StateStopped        SessionState = "stopped"
)

// NodeStatus describes a provider session
type NodeStatus struct {
	State         SessionState       `json:"state"`
	Endpoint      ConnectionEndpoint `json:"endpoint"`
	PID           int                `json:"pid,omitempty"`
	Managed       bool               `json:"managed"`
	ClientVersion string             `json:"clientVersion,omitempty"`
	ChainID       uint64             `json:"chainId,omitempty"`
	PoA           bool               `json:"poa"`
	Fork          *ForkConfig        `json:"fork,omitempty"`
	LogFile       string             `json:"logFile,omitempty"`
}
