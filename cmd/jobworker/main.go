// Command jobworker runs the invoice-ops pipeline substrate: the job
// scheduler's worker loop, the operational guard in front of every
// outbound dependency call, validation enforcement, and incident
// upsert on a blocked invoice. It also serves /metrics for Prometheus
// scraping. Grounded on the teacher's cmd/appserver/main.go lifecycle
// (flag parsing, DSN resolution, migrate-then-serve, signal-driven
// graceful shutdown) adapted from an HTTP server to a background
// worker process.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"

	"github.com/gelka-enerji/invoice-ops/internal/guard"
	"github.com/gelka-enerji/invoice-ops/internal/guardconfig"
	"github.com/gelka-enerji/invoice-ops/internal/incident"
	"github.com/gelka-enerji/invoice-ops/internal/jobstore"
	"github.com/gelka-enerji/invoice-ops/internal/logging"
	"github.com/gelka-enerji/invoice-ops/internal/metricssink"
	"github.com/gelka-enerji/invoice-ops/internal/ports"
	"github.com/gelka-enerji/invoice-ops/internal/scheduler"
	"github.com/gelka-enerji/invoice-ops/internal/validation"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DATABASE_URL)")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the /metrics endpoint")
	pollInterval := flag.Duration("poll-interval", time.Second, "worker claim poll interval")
	flag.Parse()

	log := logging.New(logging.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Output: os.Getenv("LOG_OUTPUT"),
	})

	dsnVal := resolveDSN(*dsn)
	if dsnVal == "" {
		log.Fatal("no DSN given: pass -dsn or set DATABASE_URL")
	}

	db, err := sql.Open("postgres", dsnVal)
	if err != nil {
		log.WithError(err).Fatal("open postgres connection")
	}
	defer db.Close()
	if err := db.PingContext(context.Background()); err != nil {
		log.WithError(err).Fatal("ping postgres")
	}

	clock := ports.NewSystemClock()
	metrics := metricssink.Sink{}

	guardCfg, fellBack := guardconfig.Load()
	if fellBack {
		metrics.Inc("guard_config_fallback", nil)
		log.Warn("guard config failed to load cleanly; running on compiled defaults")
	}

	jobStore := jobstore.NewPostgresStore(db, clock)
	incidentStore := incident.NewPostgresStore(db, clock)
	router := incident.NewRouter(clock, 0)

	killswitch := guard.NewKillswitch(metrics)
	rateLimiter := guard.NewRateLimiter(guardCfg.RateLimitFor, metrics)
	cbRegistry := guard.NewCircuitBreakerRegistry(func(dependency string) *guard.CircuitBreaker {
		return guard.NewCircuitBreaker(guard.CircuitBreakerConfig{
			WindowSize:        guardCfg.CircuitBreaker.ErrorThresholdCount,
			ErrorThresholdPct: guardCfg.CircuitBreaker.ErrorThresholdPct,
			OpenFor:           time.Duration(guardCfg.CircuitBreaker.OpenDurationSeconds) * time.Second,
			HalfOpenMax:       1,
			Clock:             clock,
		})
	})
	wrapper := guard.NewWrapper(&guardCfg, cbRegistry, metrics, nil, nil)

	enforcementCfg := validation.LoadEnforcementConfig()
	shadowCfg := validation.LoadShadowConfig()
	shadowMetrics := &validation.ShadowMetrics{}
	enforcementMetrics := &validation.EnforcementMetrics{}

	deps := pipelineDeps{
		jobStore:           scheduler.New(jobStore),
		incidentStore:      incidentStore,
		router:             router,
		killswitch:         killswitch,
		rateLimiter:        rateLimiter,
		wrapper:            wrapper,
		guardCfg:           &guardCfg,
		enforcementCfg:     enforcementCfg,
		shadowCfg:          shadowCfg,
		shadowMetrics:      shadowMetrics,
		enforcementMetrics: enforcementMetrics,
		clock:              clock,
		log:                log,
	}

	handlers := map[jobstore.Kind]scheduler.Handler{
		jobstore.KindValidate:           deps.handleValidate,
		jobstore.KindExtract:            deps.handleExtract,
		jobstore.KindExtractAndValidate: deps.handleExtractAndValidate,
	}

	worker := scheduler.NewWorker(deps.jobStore, handlers, *pollInterval, log)
	metricsServer := &http.Server{Addr: *metricsAddr, Handler: metricssink.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received; finishing current job before exit")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		if err := worker.Stop(stopCtx); err != nil {
			return fmt.Errorf("worker stop: %w", err)
		}
		return nil
	})

	worker.Start(gctx)
	log.WithField("metrics_addr", *metricsAddr).Info("job worker started")

	<-gctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("shutdown did not complete cleanly")
	}
}

func resolveDSN(flagDSN string) string {
	if flagDSN != "" {
		return flagDSN
	}
	return os.Getenv("DATABASE_URL")
}

// pipelineDeps bundles everything a job handler needs; passing one
// struct instead of threading each dependency through every handler
// keeps the scheduler.Handler signature (ctx, job) intact.
type pipelineDeps struct {
	jobStore           *scheduler.Scheduler
	incidentStore      *incident.PostgresStore
	router             *incident.Router
	killswitch         *guard.Killswitch
	rateLimiter        *guard.RateLimiter
	wrapper            *guard.Wrapper
	guardCfg           *guardconfig.Config
	enforcementCfg     validation.EnforcementConfig
	shadowCfg          validation.ShadowConfig
	shadowMetrics      *validation.ShadowMetrics
	enforcementMetrics *validation.EnforcementMetrics
	clock              ports.Clock
	log                *logging.Logger
}

// handleExtract is a thin stand-in for the extraction stage: real
// extraction (vision LLM / PDF rasterization) is an external
// collaborator reached only through ports.ExtractorPort, which this
// process does not yet wire a concrete implementation for — so an
// Extract-only job fails loudly instead of silently no-opping.
func (d *pipelineDeps) handleExtract(ctx context.Context, job jobstore.Job) (ports.Value, error) {
	return ports.Null(), fmt.Errorf("no ExtractorPort configured for this deployment")
}

// handleExtractAndValidate runs extraction then validation; since
// extraction is unwired here (see handleExtract), it reports the same
// error rather than pretending to validate unextracted data.
func (d *pipelineDeps) handleExtractAndValidate(ctx context.Context, job jobstore.Job) (ports.Value, error) {
	return d.handleExtract(ctx, job)
}

// handleValidate runs the validation rule engine over the job's
// payload under the operational guard (killswitch -> rate limit ->
// circuit breaker precheck -> dependency wrapper around the incident
// upsert write), applies the enforcement-mode decision, and — when
// blocked or warned with actionable codes — upserts an incident via
// the router and issue payload builder. Grounded on spec.md §2's data
// flow: "emits Validation result -> Enforcement decides -> if
// invalid, Incident Engine upserts."
func (d *pipelineDeps) handleValidate(ctx context.Context, job jobstore.Job) (ports.Value, error) {
	tenantID := job.InvoiceRef
	if d.killswitch.IsDisabled(d.guardCfg, tenantID) {
		return ports.Null(), fmt.Errorf("import processing disabled for %s", tenantID)
	}
	if !d.rateLimiter.Allow("validate", tenantID) {
		return ports.Null(), fmt.Errorf("rate limit exceeded for tenant %s", tenantID)
	}

	native := job.Payload.ToNative()
	asMap, _ := native.(map[string]any)
	inv := validation.Invoice(asMap)

	oldErrors := legacyErrorsFromPayload(job.Payload)
	decision := validation.EnforceValidation(inv, oldErrors, job.InvoiceRef, d.enforcementCfg, d.shadowCfg, d.shadowMetrics, d.enforcementMetrics, d.log)

	if decision.Action == validation.ActionPass {
		return ports.FromObject(map[string]ports.Value{
			"action": ports.FromString(string(decision.Action)),
			"mode":   ports.FromString(string(decision.Mode)),
		}), nil
	}

	var upsertErr error
	err := d.wrapper.Call(ctx, "incident_store", guard.OpWrite, func(callCtx context.Context) error {
		upsertErr = d.upsertIncidentForDecision(callCtx, job, decision)
		return upsertErr
	})
	if err != nil {
		d.log.WithError(err).WithField("job_id", job.ID).Error("incident upsert failed under guard")
	}

	result := ports.FromObject(map[string]ports.Value{
		"action": ports.FromString(string(decision.Action)),
		"mode":   ports.FromString(string(decision.Mode)),
	})

	if decision.Action == validation.ActionBlock {
		return result, fmt.Errorf("validation blocked: %s", primaryCodeOf(decision))
	}
	return result, nil
}

func legacyErrorsFromPayload(payload ports.Value) []string {
	if payload.Kind != ports.KindObject {
		return nil
	}
	raw, ok := payload.Obj["legacy_errors"]
	if !ok || raw.Kind != ports.KindArray {
		return nil
	}
	out := make([]string, 0, len(raw.Arr))
	for _, v := range raw.Arr {
		if v.Kind == ports.KindString {
			out = append(out, v.Str)
		}
	}
	return out
}

func primaryCodeOf(decision validation.Decision) string {
	if len(decision.Errors) == 0 {
		return "UNKNOWN"
	}
	return string(decision.Errors[0].Code)
}

func (d *pipelineDeps) upsertIncidentForDecision(ctx context.Context, job jobstore.Job, decision validation.Decision) error {
	if len(decision.Errors) == 0 {
		return nil
	}
	primary := decision.Errors[0]

	allFlags := make([]string, 0, len(decision.Errors))
	for _, e := range decision.Errors {
		allFlags = append(allFlags, string(e.Code))
	}

	action := incident.Action{
		Type:     incident.ActionBugReport,
		Owner:    "data-quality",
		Code:     string(primary.Code),
		HintText: primary.Message,
	}
	routed := d.router.Route(incident.RouteInput{
		Action:      action,
		PrimaryFlag: string(primary.Code),
		Category:    "validation",
		Severity:    severityForAction(decision.Action),
		AllFlags:    allFlags,
		Provider:    "invoice-ops",
		InvoiceID:   job.InvoiceRef,
	})

	_, _, err := d.incidentStore.Upsert(ctx, incident.UpsertInput{
		TraceID:     job.ID,
		TenantID:    job.InvoiceRef,
		Provider:    "invoice-ops",
		InvoiceID:   job.InvoiceRef,
		PrimaryFlag: string(primary.Code),
		Category:    "validation",
		Severity:    severityForAction(decision.Action),
		Message:     primary.Message,
		AllFlags:    allFlags,
		Routed:      routed,
		Details:     ports.Null(),
	})
	return err
}

func severityForAction(action validation.Action) incident.Severity {
	if action == validation.ActionBlock {
		return incident.SeverityS2
	}
	return incident.SeverityS3
}
