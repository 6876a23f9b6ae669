// Package config provides CLI configuration and application logic for loom.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/loomwire/loom/internal/loom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	projectFileName = ".loom.yaml"
	defaultLogLevel = "info"
)

// CLI is the root command configuration with subcommands.
type CLI struct {
	LogLevel string           `kong:"short='l',help='Log level',enum='debug,info,warn,error',default='info'"`
	Gen      GenCmd           `kong:"cmd,default='withargs',help='Generate wiring code (default)'"`
	Graph    GraphCmd         `kong:"cmd,help='Print the provider graph without writing files'"`
	Version  kong.VersionFlag `kong:"short='v',help='Show version and exit.'"`
}

// ProjectConfig is an optional .loom.yaml found near the input files.
// Command-line flags win over its values.
type ProjectConfig struct {
	Suffix            string `yaml:"suffix"`
	LogLevel          string `yaml:"log_level"`
	LiteralExtraction string `yaml:"literal_extraction"`
}

// GenCmd is the default command for generating wiring code.
type GenCmd struct {
	DryRun bool     `kong:"help='Print generated code to stdout instead of writing files'"`
	Suffix string   `kong:"help='Suffix for generated file names (default _loom)'"`
	Files  []string `kong:"arg,help='Go files to process'"`
}

// Run executes the gen command.
func (c *GenCmd) Run(cli *CLI) error {
	if len(c.Files) == 0 {
		return fmt.Errorf("no files specified")
	}

	project, err := loadProjectConfig(c.Files)
	if err != nil {
		return err
	}
	setupLogger(resolveLogLevel(cli.LogLevel, project.LogLevel))

	slog.Info("generating wiring code", "files", c.Files)

	literals, err := literalClassifier(project.LiteralExtraction)
	if err != nil {
		return err
	}

	suffix := c.Suffix
	if suffix == "" {
		suffix = project.Suffix
	}

	processor := loom.NewProcessor(suffix, c.DryRun, literals)
	return processor.ProcessFiles(c.Files)
}

// GraphCmd prints each directive's providers and construction order.
type GraphCmd struct {
	Dot   bool     `kong:"help='Emit Graphviz DOT instead of a plain listing'"`
	Files []string `kong:"arg,help='Go files to inspect'"`
}

// Run executes the graph command.
func (c *GraphCmd) Run(cli *CLI) error {
	if len(c.Files) == 0 {
		return fmt.Errorf("no files specified")
	}

	project, err := loadProjectConfig(c.Files)
	if err != nil {
		return err
	}
	setupLogger(resolveLogLevel(cli.LogLevel, project.LogLevel))

	literals, err := literalClassifier(project.LiteralExtraction)
	if err != nil {
		return err
	}

	processor := loom.NewProcessor(project.Suffix, true, literals)
	return processor.DescribeFiles(os.Stdout, c.Files, c.Dot)
}

func Run() error {
	var cli CLI
	kongCtx := kong.Parse(&cli,
		kong.Name("loom"),
		kong.Description("A type-directed dependency wiring generator for Go"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": fmt.Sprintf("%s (%s) released on %s", version, commit, date),
		},
	)

	return kongCtx.Run(&cli)
}

// loadProjectConfig finds the nearest .loom.yaml walking up from the first
// input file. The search stops at the module root, so a config file above an
// unrelated module is never picked up.
func loadProjectConfig(files []string) (ProjectConfig, error) {
	var cfg ProjectConfig
	if len(files) == 0 {
		return cfg, nil
	}

	start, err := filepath.Abs(filepath.Dir(files[0]))
	if err != nil {
		return cfg, fmt.Errorf("resolve %s: %w", files[0], err)
	}

	for dir := start; ; {
		path := filepath.Join(dir, projectFileName)
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}

			slog.Debug("loaded project config", "path", path)
			return cfg, nil
		}

		if atModuleRoot(dir) {
			return cfg, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return cfg, nil
		}
		dir = parent
	}
}

// atModuleRoot reports whether dir holds the go.mod of the enclosing module.
func atModuleRoot(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return false
	}

	if path := modfile.ModulePath(data); path != "" {
		slog.Debug("project config search stopped at module root", "module", path)
	}

	return true
}

// literalClassifier maps the literal_extraction setting to a classifier.
// Extraction is on unless explicitly disabled.
func literalClassifier(setting string) (loom.LiteralClassifier, error) {
	switch setting {
	case "", "on":
		return loom.HeuristicClassifier{}, nil
	case "off":
		return nil, nil
	}

	return nil, fmt.Errorf("invalid literal_extraction value %q: expected on or off", setting)
}

// resolveLogLevel prefers an explicit flag over the project file value.
func resolveLogLevel(flag, project string) string {
	if flag != defaultLogLevel {
		return flag
	}
	if project != "" {
		return project
	}

	return flag
}

func setupLogger(level string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
