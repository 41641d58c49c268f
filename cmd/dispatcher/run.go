package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apiserver "github.com/kubev2v/workflow-dispatcher/internal/api_server"
	"github.com/kubev2v/workflow-dispatcher/internal/catalog"
	"github.com/kubev2v/workflow-dispatcher/internal/client"
	"github.com/kubev2v/workflow-dispatcher/internal/config"
	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
	"github.com/kubev2v/workflow-dispatcher/internal/service"
	"github.com/kubev2v/workflow-dispatcher/internal/service/report"
	"github.com/kubev2v/workflow-dispatcher/pkg/archive"
	"github.com/kubev2v/workflow-dispatcher/pkg/log"
)

const archiveTimeout = time.Minute

func run(cfg *config.Config) error {
	logger := log.InitLog(log.ParseLevel(cfg.Service.LogLevel))
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	if err := cfg.Validate(); err != nil {
		zap.S().Errorf("%v", err)
		return err
	}

	doc, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		zap.S().Errorf("loading catalog: %v", err)
		return err
	}
	filter := catalog.NewFilter(cfg.Catalog.Names, cfg.Catalog.Technologies, cfg.Catalog.Categories, cfg.Catalog.Others)
	specs := filter.Select(doc)
	zap.S().Infof("selected %d of %d catalog entries", len(specs), len(doc.Jobs))
	if len(specs) == 0 {
		zap.S().Warn("name and annotation filters matched no catalog entry")
	}

	gh, err := client.NewGitHubClient(&client.Config{
		Server:  cfg.GitHub.APIURL,
		Token:   cfg.GitHub.Token,
		Timeout: cfg.GitHub.RequestTimeout,
	})
	if err != nil {
		zap.S().Errorf("creating github client: %v", err)
		return err
	}

	controller := dispatch.NewController(gh, dispatch.Options{
		Workflow:       cfg.Dispatch.Workflow,
		MaxConcurrency: cfg.Dispatch.MaxConcurrentJobs,
		JobTimeout:     cfg.JobTimeout(),
		RunTimeout:     cfg.RunTimeout(),
		PollInterval:   cfg.Dispatch.PollInterval,
		DryRun:         cfg.Dispatch.DryRun,
		Central:        centralTarget(cfg, filter),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	stopStatus, err := startStatusServer(cfg.Service.StatusAddress, controller)
	if err != nil {
		zap.S().Errorf("starting status server: %v", err)
		return err
	}
	defer stopStatus()

	runID := cfg.CI.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	zap.S().Infow("starting dispatch", "run_id", runID, "jobs", len(specs), "workflow", cfg.Dispatch.Workflow, "dry_run", cfg.Dispatch.DryRun)

	summary, runErr := controller.Run(ctx, dispatch.NewJobs(specs, cfg.Dispatch.DefaultRef))
	if summary != nil {
		publishReport(cfg, summary, specs, runID)
	}
	if runErr != nil {
		zap.S().Errorf("run failed: %v", runErr)
		return runErr
	}
	return nil
}

// centralTarget routes the run to the central repository when the selected
// entries are all annotated as deployable by it.
func centralTarget(cfg *config.Config, filter catalog.Filter) *dispatch.CentralTarget {
	if !filter.Requires(catalog.AnnotationOthers, cfg.Dispatch.Central.Annotation) {
		return nil
	}
	owner, repo := cfg.CentralRepository()
	zap.S().Infof("dispatching through %s/%s at catalog ref %s", owner, repo, cfg.CatalogRef())
	return &dispatch.CentralTarget{
		Owner:      owner,
		Repo:       repo,
		Ref:        cfg.Dispatch.Central.Ref,
		CatalogRef: cfg.CatalogRef(),
	}
}

// startStatusServer serves the status routes when an address is configured.
// The returned function stops the server.
func startStatusServer(address string, controller *dispatch.Controller) (func(), error) {
	if address == "" {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := apiserver.NewStatusServer(address, listener, controller).Run(ctx); err != nil {
			zap.S().Named("status_server").Errorf("status server failed: %v", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// publishReport renders, writes and archives the report. Failures are logged
// and never change the outcome of the run.
func publishReport(cfg *config.Config, summary *dispatch.Summary, specs []catalog.Spec, runID string) {
	format := service.ReportFormat(cfg.Report.Format)
	content, err := service.NewReportService(cfg.Report.Template).GenerateReport(summary, specs, service.ReportOptions{
		Format:   format,
		Site:     report.DetectSite(cfg.Report.Site, cfg.Dispatch.Workflow),
		RunID:    runID,
		HeadRef:  cfg.CI.HeadRef,
		Workflow: cfg.Dispatch.Workflow,
		DryRun:   cfg.Dispatch.DryRun,
	})
	if err != nil {
		zap.S().Named("report").Errorf("rendering report: %v", err)
		return
	}

	destination := cfg.ReportDestination()
	if err := report.Write(destination, format, content); err != nil {
		zap.S().Named("report").Errorf("writing report: %v", err)
	} else if destination != "" {
		zap.S().Named("report").Infof("report written to %s", destination)
	}

	if !cfg.ArchiveEnabled() {
		return
	}
	if err := archiveReport(cfg, format, runID, content); err != nil {
		zap.S().Named("report").Errorf("archiving report: %v", err)
	}
}

func archiveReport(cfg *config.Config, format service.ReportFormat, runID string, content []byte) error {
	a := cfg.Report.Archive
	uploader, err := archive.NewMinioUploader(
		archive.WithEndpoint(a.Endpoint),
		archive.WithBucket(a.Bucket),
		archive.WithAccessKey(a.AccessKey),
		archive.WithSecretKey(a.SecretKey),
		archive.WithRegion(a.Region),
		archive.WithSSL(a.UseSSL),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	key, err := uploader.Put(ctx, runID, format.Extension(), format.ContentType(), content)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("upload timed out after %s: %w", archiveTimeout, err)
		}
		return err
	}
	zap.S().Named("report").Infof("report archived as %s/%s", a.Bucket, key)
	return nil
}
