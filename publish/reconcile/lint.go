package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/byte4ever/spec_publisher/publish/exec"
)

// severityError is the ESLint severity of a rule reported
// as an error.
const severityError = 2

const lintErrorHeader = "the following error(s) were found while " +
	"linting the generated spec, if it comes from an official " +
	"integration report the failure to its maintainers:"

// DefaultLintCommand runs ESLint with auto fix and a JSON
// report on stdout. The staged config flag and the target
// path are appended.
var DefaultLintCommand = []string{
	"npx", "eslint@8", "--fix", "--format", "json",
}

// DefaultESLintConfig is the ESLint config staged next to
// the linted files.
var DefaultESLintConfig = map[string]any{
	"extends": "@fig/autocomplete",
}

// DefaultLintSetupCommand installs the shared config that
// DefaultESLintConfig extends.
var DefaultLintSetupCommand = []string{
	"npm", "i", "@fig/eslint-config-autocomplete",
}

// eslintConfigName is the file ESLintConfig is written to
// in Dir.
const eslintConfigName = ".tmp-eslintrc"

// DefaultFormatCommand runs prettier in write mode. The
// target path is appended.
var DefaultFormatCommand = []string{
	"npx", "prettier", "--parser", "typescript", "--write",
}

// Violation is one lint message that could not be fixed.
type Violation struct {
	Path    string
	RuleID  string
	Line    int
	Column  int
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %d:%d - %s", v.RuleID, v.Line, v.Column, v.Message)
}

// LintError lists every violation left after lint fix.
type LintError struct {
	Violations []Violation
}

func (e *LintError) Error() string {
	lines := make([]string, 0, len(e.Violations)+1)
	lines = append(lines, lintErrorHeader)

	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}

	return strings.Join(lines, "\n")
}

// eslintResult is one file entry of the ESLint JSON
// formatter output.
type eslintResult struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"`
		Message  string `json:"message"`
		Line     int    `json:"line"`
		Column   int    `json:"column"`
	} `json:"messages"`
}

// CommandNormalizer normalizes with a lint fixer followed
// by a formatter, both run as subprocesses in Dir. A nil
// command skips that step.
type CommandNormalizer struct {
	LintCmd   []string
	FormatCmd []string
	Dir       string
	// ESLintConfig, when set, is written as JSON to
	// .tmp-eslintrc in Dir and passed to LintCmd with
	// --config. SetupCmd runs in Dir before the file is
	// first written.
	ESLintConfig map[string]any
	SetupCmd     []string
}

// NewCommandNormalizer returns a CommandNormalizer using
// the default ESLint setup and prettier commands.
func NewCommandNormalizer(dir string) *CommandNormalizer {
	return &CommandNormalizer{
		LintCmd:      DefaultLintCommand,
		FormatCmd:    DefaultFormatCommand,
		Dir:          dir,
		ESLintConfig: DefaultESLintConfig,
		SetupCmd:     DefaultLintSetupCommand,
	}
}

// Normalize implements Normalizer.
func (n *CommandNormalizer) Normalize(ctx context.Context, path string) error {
	const errCtx = "normalizing with commands"

	if len(n.LintCmd) > 0 {
		if err := n.lint(ctx, path); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		slog.Info("linted spec", "path", path)
	}

	if len(n.FormatCmd) > 0 {
		name, args, err := exec.Program(n.FormatCmd)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		if _, err := exec.Ex(
			ctx, n.Dir, name, append(slices.Clone(args), path)...,
		); err != nil {
			return fmt.Errorf("%s: formatting: %w", errCtx, err)
		}

		slog.Info("formatted spec", "path", path)
	}

	return nil
}

func (n *CommandNormalizer) lint(ctx context.Context, path string) error {
	name, args, err := exec.Program(n.LintCmd)
	if err != nil {
		return err
	}

	args = slices.Clone(args)

	if n.ESLintConfig != nil {
		cfgPath, err := n.stageConfig(ctx)
		if err != nil {
			return fmt.Errorf("linting: %w", err)
		}

		args = append(args, "--config", cfgPath)
	}

	// The linter exits non zero when errors remain, the
	// report on stdout is what tells them apart from a
	// crash.
	out, runErr := exec.Output(ctx, n.Dir, name, append(args, path)...)

	var report []eslintResult

	if err := json.Unmarshal([]byte(out), &report); err != nil {
		if runErr != nil {
			return fmt.Errorf("linting: %w", runErr)
		}

		return fmt.Errorf("linting: decoding report: %w", err)
	}

	var violations []Violation

	for _, res := range report {
		for _, m := range res.Messages {
			if m.Severity != severityError {
				continue
			}

			violations = append(violations, Violation{
				Path:    res.FilePath,
				RuleID:  m.RuleID,
				Line:    m.Line,
				Column:  m.Column,
				Message: m.Message,
			})
		}
	}

	if len(violations) > 0 {
		return &LintError{Violations: violations}
	}

	if runErr != nil {
		return fmt.Errorf("linting: %w", runErr)
	}

	return nil
}

// stageConfig writes ESLintConfig in Dir, running SetupCmd
// first. An already staged config is reused.
func (n *CommandNormalizer) stageConfig(ctx context.Context) (string, error) {
	const errCtx = "staging lint config"

	pa := filepath.Join(n.Dir, eslintConfigName)

	_, err := os.Stat(pa)
	if err == nil {
		return pa, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(n.SetupCmd) > 0 {
		name, args, err := exec.Program(n.SetupCmd)
		if err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}

		if _, err := exec.Ex(ctx, n.Dir, name, args...); err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	by, err := json.Marshal(n.ESLintConfig)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if err := os.WriteFile(pa, by, 0o600); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("staged lint config", "path", pa)

	return pa, nil
}
