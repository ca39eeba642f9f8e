package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/rowbulk/internal/config"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
	// StatusSkip indicates the check did not apply.
	StatusSkip
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	case StatusSkip:
		return "SKIP"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Probe connects to an external system and reports whether it is usable.
type Probe func(ctx context.Context) error

// Checker performs preflight validation checks.
type Checker struct {
	verbose      bool
	output       io.Writer
	sourceProbe  Probe
	backendProbe Probe
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithSourceProbe sets how the source database is contacted.
func WithSourceProbe(p Probe) Option {
	return func(c *Checker) {
		c.sourceProbe = p
	}
}

// WithBackendProbe sets how the backend is contacted.
func WithBackendProbe(p Probe) Option {
	return func(c *Checker) {
		c.backendProbe = p
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks for cfg and returns the results. The
// connectivity checks are skipped when the configuration is incomplete.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult

	configResult := c.CheckConfig(cfg)
	results = append(results, configResult)
	results = append(results, c.CheckWritePermissions(cfg.DataDir))

	// A local index must absorb at least one full bulk buffer.
	disk := c.CheckDiskSpace(cfg.LocalBackendPath(), cfg.Bulk.BufferBytes)
	if cfg.Backend.Kind == config.BackendElasticsearch {
		// Only local backends store the index on this machine.
		disk.Required = false
	}
	results = append(results, disk)
	results = append(results, c.CheckFileDescriptors())

	if configResult.Status == StatusFail {
		results = append(results,
			skipped("source", "configuration incomplete"),
			skipped("backend", "configuration incomplete"))
		return results
	}
	results = append(results, c.checkProbe(ctx, "source", describeSource(cfg), c.sourceProbe))
	results = append(results, c.checkProbe(ctx, "backend", describeBackend(cfg), c.backendProbe))
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "rowbulk preflight check")
	_, _ = fmt.Fprintln(c.output, "=======================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	status := c.SummaryStatus(results)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(status))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn || r.Status == StatusFail {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckConfig checks that the settings a build needs are present.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}

	var missing []string
	if cfg.Source.DSN == "" {
		missing = append(missing, "source.dsn")
	}
	if cfg.Source.Table == "" && cfg.Source.RowTypeOID == 0 {
		missing = append(missing, "source.table")
	}
	if cfg.Backend.Index == "" {
		missing = append(missing, "backend.index")
	}
	if cfg.Backend.Kind == config.BackendElasticsearch && cfg.Backend.Endpoint == "" {
		missing = append(missing, "backend.endpoint")
	}

	if err := cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	if len(missing) > 0 {
		result.Status = StatusFail
		result.Message = "missing " + strings.Join(missing, ", ")
		result.Details = "Set them in .rowbulk.yaml or pass them as flags"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s %s → %s %q", cfg.Source.Driver, describeSource(cfg), cfg.Backend.Kind, cfg.Backend.Index)
	return result
}

// CheckWritePermissions checks that build locks can be created under dataDir.
func (c *Checker) CheckWritePermissions(dataDir string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	dir := filepath.Join(dataDir, "locks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}

func (c *Checker) checkProbe(ctx context.Context, name, target string, probe Probe) CheckResult {
	if probe == nil {
		return skipped(name, "no probe configured")
	}

	result := CheckResult{
		Name:     name,
		Required: true,
	}
	if err := probe(ctx); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s unreachable", target)
		result.Details = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = target
	return result
}

func skipped(name, reason string) CheckResult {
	return CheckResult{Name: name, Status: StatusSkip, Message: reason}
}

func describeSource(cfg *config.Config) string {
	if cfg.Source.Table != "" {
		return cfg.Source.Table
	}
	return fmt.Sprintf("row type %d", cfg.Source.RowTypeOID)
}

func describeBackend(cfg *config.Config) string {
	if cfg.Backend.Kind == config.BackendElasticsearch {
		return cfg.Backend.Endpoint
	}
	return cfg.Backend.Kind + " at " + cfg.LocalBackendPath()
}
