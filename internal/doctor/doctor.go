package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/ai"
	"github.com/railsplan/railsplan/internal/appcontext"
	"github.com/railsplan/railsplan/internal/modules"
)

// Severity ranks an issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is one problem found by a check. Fix holds the remediation; when
// Fixable is set, Doctor.Fix can apply it.
type Issue struct {
	ID       string   `json:"id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Fixable  bool     `json:"fixable"`
	Fix      string   `json:"fix,omitempty"`

	apply func(ctx context.Context) error
}

// Report is the outcome of a doctor run
type Report struct {
	GeneratedAt   time.Time `json:"generated_at"`
	TotalIssues   int       `json:"total_issues"`
	FixableIssues int       `json:"fixable_issues"`
	Issues        []Issue   `json:"issues"`
}

// HasErrors reports whether any issue is an error
func (r *Report) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Config configures a Doctor
type Config struct {
	AppRoot   string
	Installer *modules.Installer
	Extractor *appcontext.Extractor

	// AIConfig loads the AI configuration; nil uses ai.LoadConfig
	AIConfig func() (*ai.Config, error)

	// Env is the Rails environment probed; empty uses RAILS_ENV or development
	Env       string
	LookupEnv func(string) (string, bool)

	// OpenDB opens probe connections; nil uses sql.Open
	OpenDB       func(driver, dsn string) (*sql.DB, error)
	ProbeTimeout time.Duration

	Logger *zap.Logger
}

// Doctor runs health checks against a Rails app
type Doctor struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Doctor
func New(cfg Config) *Doctor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	if cfg.Env == "" {
		cfg.Env = "development"
		if env, ok := cfg.LookupEnv("RAILS_ENV"); ok && env != "" {
			cfg.Env = env
		}
	}
	if cfg.OpenDB == nil {
		cfg.OpenDB = sql.Open
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.Installer == nil {
		cfg.Installer = modules.NewInstaller(modules.Config{AppRoot: cfg.AppRoot, Logger: cfg.Logger})
	}
	if cfg.Extractor == nil {
		cfg.Extractor = appcontext.NewExtractor(
			appcontext.WithLogger(cfg.Logger),
			appcontext.WithModuleSource(cfg.Installer.Registry()),
		)
	}
	if cfg.AIConfig == nil {
		root := cfg.AppRoot
		cfg.AIConfig = func() (*ai.Config, error) {
			return ai.LoadConfig(ai.LoadOptions{AppRoot: root})
		}
	}

	return &Doctor{cfg: cfg, logger: cfg.Logger, now: time.Now}
}

type check struct {
	name string
	run  func(ctx context.Context) ([]Issue, error)
}

func (d *Doctor) checks() []check {
	return []check{
		{"state", d.checkStateDir},
		{"context", d.checkContext},
		{"registry", d.checkRegistry},
		{"modules", d.checkModules},
		{"ai", d.checkAI},
		{"database", d.checkDatabase},
		{"redis", d.checkRedis},
	}
}

// Run executes every check and collects the issues in check order
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		GeneratedAt: d.now().UTC(),
		Issues:      make([]Issue, 0),
	}

	for _, c := range d.checks() {
		issues, err := c.run(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s check failed: %w", c.name, err)
		}
		d.logger.Debug("check finished", zap.String("check", c.name), zap.Int("issues", len(issues)))
		report.Issues = append(report.Issues, issues...)
	}

	report.TotalIssues = len(report.Issues)
	for _, issue := range report.Issues {
		if issue.Fixable {
			report.FixableIssues++
		}
	}
	return report, nil
}

// Fix applies every fixable issue of report in order and returns the ones
// that were fixed. It stops at the first failing fix.
func (d *Doctor) Fix(ctx context.Context, report *Report) ([]Issue, error) {
	fixed := make([]Issue, 0)
	for _, issue := range report.Issues {
		if !issue.Fixable || issue.apply == nil {
			continue
		}
		if err := issue.apply(ctx); err != nil {
			return fixed, fmt.Errorf("failed to fix %s: %w", issue.ID, err)
		}
		d.logger.Info("issue fixed", zap.String("id", issue.ID))
		fixed = append(fixed, issue)
	}
	return fixed, nil
}
