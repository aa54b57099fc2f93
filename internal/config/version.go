package config

// Build metadata, overridden at link time with
// -ldflags "-X github.com/trebuchet-org/treb-hardhat/internal/config.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
