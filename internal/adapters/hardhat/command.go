package hardhat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
)

// CommandBuilder assembles the hardhat node command line
type CommandBuilder struct {
	installer   *Installer
	projectRoot string
	dataDir     string
}

// NewCommandBuilder creates a builder
func NewCommandBuilder(installer *Installer, projectRoot, dataDir string) *CommandBuilder {
	return &CommandBuilder{installer: installer, projectRoot: projectRoot, dataDir: dataDir}
}

// Build returns the command that launches a node on port with configFile.
// The install check runs first so missing tools fail before anything spawns.
func (b *CommandBuilder) Build(ctx context.Context, port int, configFile, binOverride string, fork *domain.ForkConfig) (domain.NodeCommand, domain.InstallState, error) {
	check, err := b.installer.Check(ctx)
	if err != nil {
		return domain.NodeCommand{}, domain.InstallUnknown, err
	}

	bin := b.installer.BinPath(binOverride)
	if info, err := os.Stat(bin); err != nil || info.IsDir() {
		return domain.NodeCommand{}, check.State, &domain.NotInstalledError{Err: fmt.Errorf("hardhat binary not found at %s", bin)}
	}

	noDeploy := fork != nil && !fork.EnableHardhatDeployments && b.installer.HasPlugin("hardhat-deploy")

	return domain.NodeCommand{
		Runtime: check.Runtime,
		Binary:  bin,
		Args:    BuildArgs(port, configFile, fork, noDeploy),
		Dir:     b.projectRoot,
		LogFile: filepath.Join(b.dataDir, "hardhat", fmt.Sprintf("node-%d.log", port)),
	}, check.State, nil
}

// BuildArgs returns the arguments passed to the hardhat binary
func BuildArgs(port int, configFile string, fork *domain.ForkConfig, noDeploy bool) []string {
	args := []string{
		"node",
		"--hostname", domain.DefaultHost,
		"--port", strconv.Itoa(port),
		"--config", configFile,
	}

	if fork != nil {
		args = append(args, "--fork", fork.UpstreamURL)
		if fork.BlockNumber != nil {
			args = append(args, "--fork-block-number", strconv.FormatUint(*fork.BlockNumber, 10))
		}
	}

	// --no-deploy only exists when hardhat-deploy is installed
	if noDeploy {
		args = append(args, "--no-deploy")
	}

	return args
}

var _ usecase.CommandBuilder = (*CommandBuilder)(nil)
