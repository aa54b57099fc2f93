package hardhat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/tidwall/gjson"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
)

// pluginPattern matches npm package names of Hardhat plugins
var pluginPattern = regexp.MustCompile(`hardhat-[A-Za-z0-9-]+$`)

// binSuffix is where npm links the hardhat executable
var binSuffix = filepath.Join("node_modules", ".bin", "hardhat")

// CommandRunner runs an external command and returns its stdout
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Installer locates the node toolchain and checks the local Hardhat install.
// Results are computed once per Installer.
type Installer struct {
	projectRoot string
	log         *slog.Logger

	run      CommandRunner
	lookPath func(string) (string, error)
	homeDir  func() (string, error)

	once   sync.Once
	result domain.InstallCheck
	err    error
}

// NewInstaller creates an installer rooted at the project directory
func NewInstaller(projectRoot string, log *slog.Logger) *Installer {
	return &Installer{
		projectRoot: projectRoot,
		log:         log.With("component", "installer"),
		run:         execRunner,
		lookPath:    exec.LookPath,
		homeDir:     os.UserHomeDir,
	}
}

// Check verifies npx, npm and node and reports which runtime to launch the
// Hardhat binary with. Missing tools are fatal; a failed npm manifest lookup
// only marks the install as uncertain.
func (i *Installer) Check(ctx context.Context) (domain.InstallCheck, error) {
	i.once.Do(func() {
		i.result, i.err = i.check(ctx)
	})
	return i.result, i.err
}

func (i *Installer) check(ctx context.Context) (domain.InstallCheck, error) {
	npx, err := i.lookPath("npx")
	if err != nil {
		return domain.InstallCheck{}, &domain.DependencyMissingError{Tool: "npx", Reason: "executable not found"}
	}
	if _, err := i.run(ctx, npx, "--version"); err != nil {
		return domain.InstallCheck{}, &domain.DependencyMissingError{Tool: "npm", Reason: "returned a non-zero exit code"}
	}

	out, err := i.run(ctx, npx, "hardhat", "--version")
	if err != nil {
		return domain.InstallCheck{}, &domain.NotInstalledError{Err: err}
	}
	version := strings.TrimSpace(string(out))
	i.log.Debug("using hardhat", "version", version)
	if version == "" || !unicode.IsDigit(rune(version[0])) {
		return domain.InstallCheck{}, &domain.NotInstalledError{}
	}

	npm, err := i.lookPath("npm")
	if err != nil {
		return domain.InstallCheck{}, &domain.DependencyMissingError{Tool: "npm", Reason: "executable not found"}
	}

	listing, err := i.run(ctx, npm, "list", "hardhat", "--json")
	if err != nil {
		i.log.Debug("npm could not confirm the hardhat install", "error", err)
		return domain.InstallCheck{Runtime: npx, Version: version, State: domain.InstallUncertain}, nil
	}

	state := domain.InstallUncertain
	if gjson.GetBytes(listing, "dependencies.hardhat").Exists() {
		state = domain.InstallVerified
	}

	node, err := i.lookPath("node")
	if err != nil {
		return domain.InstallCheck{}, &domain.DependencyMissingError{Tool: "node", Reason: "executable not found"}
	}

	return domain.InstallCheck{Runtime: node, Version: version, State: state}, nil
}

// BinPath returns the hardhat executable: the override when set, else the
// project's node_modules, else the home directory's, else the relative
// default.
func (i *Installer) BinPath(override string) string {
	if override != "" {
		return override
	}

	bases := []string{i.projectRoot}
	if home, err := i.homeDir(); err == nil {
		bases = append(bases, home)
	}
	for _, base := range bases {
		path := filepath.Join(base, binSuffix)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return binSuffix
}

// Plugins lists Hardhat plugin packages from package.json dependencies and
// devDependencies
func (i *Installer) Plugins() ([]string, error) {
	raw, err := os.ReadFile(filepath.Join(i.projectRoot, "package.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("package.json is not valid JSON")
	}

	var plugins []string
	for _, section := range []string{"dependencies", "devDependencies"} {
		gjson.GetBytes(raw, section).ForEach(func(name, _ gjson.Result) bool {
			if pluginPattern.MatchString(name.String()) {
				plugins = append(plugins, name.String())
			}
			return true
		})
	}
	return plugins, nil
}

// HasPlugin reports whether a plugin package is a project dependency
func (i *Installer) HasPlugin(name string) bool {
	plugins, err := i.Plugins()
	if err != nil {
		i.log.Warn("failed to read hardhat plugins", "error", err)
		return false
	}
	return slices.Contains(plugins, name)
}
