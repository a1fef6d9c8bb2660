// Package config loads the link checker's configuration from CLI flags and
// environment variables, validates it and applies defaults.
//
// CLI flags select what to run and which outside services are mocked
// (--no-email, --no-s3, --test). Environment variables provide secrets, timing
// and service configuration.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/notify"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
)

const (
	defaultS3Region   = "auto"
	defaultReportPath = "failed_tests.yaml"
)

// Flags are the parsed command-line flags.
type Flags struct {
	CatalogPath   string
	Suites        []string
	Headed        bool
	ReportPath    string
	ScreenshotDir string
	NoEmail       bool
	NoS3          bool
}

// Config holds all run configuration.
type Config struct {
	// What to run
	CatalogPath string   // empty means the embedded catalog
	Suites      []string // suite names or ids; empty means all

	// Browser
	Headless bool
	Viewport browser.Viewport

	// Verification timing
	Timeout        time.Duration // NAVCHECK_TIMEOUT, bounds each click's watchers
	VisibleTimeout time.Duration // NAVCHECK_VISIBLE_TIMEOUT
	SettleWindow   time.Duration // NAVCHECK_SETTLE_WINDOW

	// Politeness pacing per host
	RateLimitConfig ratelimit.Config

	// Output
	ReportPath    string
	ScreenshotDir string // empty disables screenshots
	LogLevel      string

	// Mock service flags (controlled by CLI flags, not env vars)
	NoEmail bool // If true, failure email is captured, not sent (--no-email)
	NoS3    bool // If true, artifacts are not uploaded (--no-s3)

	// Resend Email
	ResendAPIKey    string
	ResendFromEmail string
	NotifyTo        []string // NOTIFY_EMAIL_TO
	MockOutboxDir   string   // MOCK_EMAIL_OUTBOX_DIR, used with --no-email

	// S3-compatible artifact storage
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	AWSPublicURL       string // S3_PUBLIC_URL

	viewportErr error
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// stringList is a repeatable, comma-separated flag.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

// ParseFlags parses args (without the program name). Call before LoadConfig.
// Usage errors are written to stderr.
func ParseFlags(args []string, stderr io.Writer) (Flags, error) {
	var (
		f        Flags
		suites   stringList
		testMode bool
	)
	fs := flag.NewFlagSet("navcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.CatalogPath, "catalog", "", "Check catalog YAML (default: embedded catalog)")
	fs.Var(&suites, "suite", "Suite name or id to run; repeatable or comma-separated (default: all)")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window")
	fs.StringVar(&f.ReportPath, "report", defaultReportPath, "Where to write the failed-checks YAML report")
	fs.StringVar(&f.ScreenshotDir, "screenshots", "", "Directory for failure screenshots (default: none)")
	fs.BoolVar(&f.NoEmail, "no-email", false, "Capture the failure email instead of sending it")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Do not upload artifacts")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --no-email --no-s3")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if fs.NArg() > 0 {
		return Flags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	f.Suites = suites
	if testMode {
		f.NoEmail = true
		f.NoS3 = true
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	// CLI flag values
	cfg.CatalogPath = f.CatalogPath
	cfg.Suites = f.Suites
	cfg.Headless = !f.Headed
	cfg.ReportPath = f.ReportPath
	if cfg.ReportPath == "" {
		cfg.ReportPath = defaultReportPath
	}
	cfg.ScreenshotDir = f.ScreenshotDir
	cfg.NoEmail = f.NoEmail
	cfg.NoS3 = f.NoS3

	// Browser and timing
	cfg.Viewport = browser.DefaultViewport
	if v := strings.TrimSpace(os.Getenv("NAVCHECK_VIEWPORT")); v != "" {
		cfg.Viewport, cfg.viewportErr = browser.ParseViewport(v)
	}
	cfg.Timeout = parseDurationOrDefault("NAVCHECK_TIMEOUT", navverify.DefaultTimeout)
	cfg.VisibleTimeout = parseDurationOrDefault("NAVCHECK_VISIBLE_TIMEOUT", navverify.DefaultVisibleTimeout)
	cfg.SettleWindow = parseDurationOrDefault("NAVCHECK_SETTLE_WINDOW", navverify.DefaultSettleWindow)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Pacing
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("NAVCHECK_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("NAVCHECK_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: ratelimit.DefaultConfig.CleanupInterval,
	}

	// Resend Email
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "linkcheck@example.com")
	cfg.NotifyTo = notify.SplitRecipients(os.Getenv("NOTIFY_EMAIL_TO"))
	cfg.MockOutboxDir = strings.TrimSpace(os.Getenv("MOCK_EMAIL_OUTBOX_DIR"))

	// S3 artifact storage
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.AWSPublicURL = strings.TrimSpace(os.Getenv("S3_PUBLIC_URL"))
	if cfg.AWSPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.AWSBucketName != "" {
		cfg.AWSPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.AWSBucketName
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When mocks are NOT active for a service, the corresponding secrets are required.
func (c *Config) Validate() error {
	var errs []string

	if c.viewportErr != nil {
		errs = append(errs, "NAVCHECK_VIEWPORT: "+c.viewportErr.Error())
	}
	if c.Timeout <= 0 {
		errs = append(errs, "NAVCHECK_TIMEOUT must be positive")
	}
	if c.VisibleTimeout <= 0 {
		errs = append(errs, "NAVCHECK_VISIBLE_TIMEOUT must be positive")
	}
	if c.SettleWindow < 0 {
		errs = append(errs, "NAVCHECK_SETTLE_WINDOW must not be negative")
	}
	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "NAVCHECK_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "NAVCHECK_BURST must be positive")
	}

	// Email: require Resend settings unless --no-email
	if !c.NoEmail {
		if c.ResendAPIKey == "" {
			errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
		}
		if len(c.NotifyTo) == 0 {
			errs = append(errs, "NOTIFY_EMAIL_TO is required (set env var or use --no-email)")
		}
	}

	// S3: require credentials unless --no-s3
	if !c.NoS3 {
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
		if c.AWSPublicURL == "" {
			errs = append(errs, "S3_PUBLIC_URL is required when AWS_ENDPOINT_URL_S3 is not set (or use --no-s3)")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "navcheck starting...")

	if c.CatalogPath == "" {
		fmt.Fprintln(w, "  Catalog: embedded")
	} else {
		fmt.Fprintf(w, "  Catalog: %s\n", c.CatalogPath)
	}
	if len(c.Suites) == 0 {
		fmt.Fprintln(w, "  Suites:  all")
	} else {
		fmt.Fprintf(w, "  Suites:  %s\n", strings.Join(c.Suites, ", "))
	}

	mode := "headless"
	if !c.Headless {
		mode = "headed"
	}
	fmt.Fprintf(w, "  Browser: chromium %s, %s\n", mode, c.Viewport)
	fmt.Fprintf(w, "  Timing:  timeout %s, visible %s, settle %s, %.1f req/s per host\n",
		c.Timeout, c.VisibleTimeout, c.SettleWindow, c.RateLimitConfig.RPS)

	if c.NoEmail {
		fmt.Fprintln(w, "  Email:   Mock (--no-email)")
	} else {
		fmt.Fprintf(w, "  Email:   Resend (from: %s, to: %s)\n", c.ResendFromEmail, strings.Join(c.NotifyTo, ", "))
	}
	if c.NoS3 {
		fmt.Fprintln(w, "  Storage: none (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Storage: S3 bucket %s (public: %s)\n", c.AWSBucketName, c.AWSPublicURL)
	}

	fmt.Fprintf(w, "  Report:  %s\n", c.ReportPath)
	if c.ScreenshotDir != "" {
		fmt.Fprintf(w, "  Shots:   %s\n", c.ScreenshotDir)
	}
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
