package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// StepSummaryEnv is set by the GitHub runner to the file collecting the job summary.
const StepSummaryEnv = "GITHUB_STEP_SUMMARY"

type Config struct {
	GitHub   *githubConfig
	Dispatch *dispatchConfig
	Catalog  *catalogConfig
	Report   *reportConfig
	Service  *svcConfig
	CI       *ciConfig
}

type githubConfig struct {
	Token          string        `envconfig:"GITHUB_TOKEN" validate:"required"`
	APIURL         string        `envconfig:"GITHUB_API_URL" default:"https://api.github.com" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"DISPATCHER_REQUEST_TIMEOUT" default:"15s" validate:"gt=0"`
}

type dispatchConfig struct {
	Workflow          string        `envconfig:"DISPATCHER_WORKFLOW" validate:"required"`
	DefaultRef        string        `envconfig:"DISPATCHER_DEFAULT_REF" default:"main" validate:"required"`
	PollInterval      time.Duration `envconfig:"DISPATCHER_POLL_INTERVAL" default:"30s" validate:"gt=0"`
	JobTimeoutMinutes int           `envconfig:"DISPATCHER_JOB_TIMEOUT_MINUTES" default:"60" validate:"gt=0"`
	RunTimeoutMinutes int           `envconfig:"DISPATCHER_RUN_TIMEOUT_MINUTES" default:"120" validate:"gt=0"`
	MaxConcurrentJobs int           `envconfig:"DISPATCHER_MAX_CONCURRENT_JOBS" default:"4" validate:"gt=0"`
	DryRun            bool          `envconfig:"DISPATCHER_DRY_RUN" default:"false"`
	Central           centralConfig
}

// centralConfig names the repository that deploys catalog items by name. It is
// used when the others annotation filter contains Annotation.
type centralConfig struct {
	Annotation string `envconfig:"DISPATCHER_CENTRAL_ANNOTATION" default:"EWCCLI-compatible" validate:"required"`
	Repository string `envconfig:"DISPATCHER_CENTRAL_REPOSITORY" default:"ewcloud/ewccli" validate:"required,contains=/"`
	Ref        string `envconfig:"DISPATCHER_CENTRAL_REF" default:"main" validate:"required"`
}

type catalogConfig struct {
	Path         string   `envconfig:"DISPATCHER_CATALOG" default:"catalog.yaml" validate:"required"`
	Names        []string `envconfig:"DISPATCHER_NAMES" default:""`
	Technologies []string `envconfig:"DISPATCHER_TECHNOLOGIES" default:""`
	Categories   []string `envconfig:"DISPATCHER_CATEGORIES" default:""`
	Others       []string `envconfig:"DISPATCHER_OTHERS" default:""`
}

type reportConfig struct {
	Path     string `envconfig:"DISPATCHER_REPORT_PATH" default:""`
	Format   string `envconfig:"DISPATCHER_REPORT_FORMAT" default:"markdown" validate:"oneof=markdown csv xlsx"`
	Template string `envconfig:"DISPATCHER_REPORT_TEMPLATE" default:""`
	Site     string `envconfig:"DISPATCHER_SITE" default:""`
	Archive  archiveConfig
}

type archiveConfig struct {
	Endpoint  string `envconfig:"DISPATCHER_ARCHIVE_ENDPOINT" default:""`
	Bucket    string `envconfig:"DISPATCHER_ARCHIVE_BUCKET" default:"" validate:"required_with=Endpoint"`
	AccessKey string `envconfig:"DISPATCHER_ARCHIVE_ACCESS_KEY" default:""`
	SecretKey string `envconfig:"DISPATCHER_ARCHIVE_SECRET_KEY" default:""`
	Region    string `envconfig:"DISPATCHER_ARCHIVE_REGION" default:""`
	UseSSL    bool   `envconfig:"DISPATCHER_ARCHIVE_USE_SSL" default:"true"`
}

type svcConfig struct {
	LogLevel      string `envconfig:"DISPATCHER_LOG_LEVEL" default:"info"`
	StatusAddress string `envconfig:"DISPATCHER_STATUS_ADDRESS" default:""`
}

// ciConfig is filled by the GitHub runner executing the dispatcher.
type ciConfig struct {
	RunID   string `envconfig:"GITHUB_RUN_ID" default:""`
	HeadRef string `envconfig:"GITHUB_HEAD_REF" default:""`
}

// New reads the configuration from the environment. The result is not validated,
// flags may still override it; call Validate once they are applied.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	for _, section := range []any{c.GitHub, c.Dispatch, c.Catalog, c.Report, c.Service, c.CI} {
		if err := v.Struct(section); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Dispatch.JobTimeoutMinutes) * time.Minute
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.Dispatch.RunTimeoutMinutes) * time.Minute
}

// ReportDestination returns the file receiving the report. An empty result means stdout.
func (c *Config) ReportDestination() string {
	if c.Report.Path != "" {
		return c.Report.Path
	}
	return os.Getenv(StepSummaryEnv)
}

// CentralRepository splits the central repository into owner and name.
func (c *Config) CentralRepository() (owner, repo string) {
	owner, repo, _ = strings.Cut(c.Dispatch.Central.Repository, "/")
	return owner, repo
}

// CatalogRef is the catalog revision a central workflow reads items from:
// the head ref of the triggering pull request, else the default ref.
func (c *Config) CatalogRef() string {
	if c.CI.HeadRef != "" {
		return c.CI.HeadRef
	}
	return c.Dispatch.DefaultRef
}

func (c *Config) ArchiveEnabled() bool {
	return c.Report.Archive.Endpoint != ""
}
