// README: Entry point; loads config, wires services, starts the HTTP server,
// the session registry, and background sweeps.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tripguard/internal/ai"
	"tripguard/internal/config"
	httptransport "tripguard/internal/http"
	"tripguard/internal/http/handlers"
	"tripguard/internal/infra"
	"tripguard/internal/maps"
	"tripguard/internal/metrics"
	"tripguard/internal/modules/appeal"
	"tripguard/internal/modules/deviation"
	"tripguard/internal/modules/dispute"
	"tripguard/internal/modules/earlycomp"
	"tripguard/internal/modules/emergency"
	"tripguard/internal/modules/profile"
	"tripguard/internal/modules/session"
	"tripguard/internal/modules/speed"
	"tripguard/internal/modules/strike"
	"tripguard/internal/modules/suspension"
	"tripguard/internal/modules/violation"
	"tripguard/internal/notify"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	rootLog := logrus.NewEntry(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Auth is optional so the service can run locally without a Firebase
	// project; without it every caller is anonymous.
	var verifier infra.TokenVerifier
	var push notify.Channel
	if cfg.Firebase.ProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
		verifier = app
		push = notify.NewFCMChannel(app.Messaging())
	} else {
		rootLog.Warn("no firebase project configured; auth disabled")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	var sms notify.Channel
	if cfg.Twilio.AccountSID != "" {
		sms = notify.NewSMSChannel(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
	}
	dispatcher := notify.NewDispatcher(push, sms)

	var summarizer ai.Summarizer
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiSummarizer(ctx, cfg.AI.GeminiKey)
		if err != nil {
			log.Fatalf("gemini init: %v", err)
		}
		defer gemini.Close()
		summarizer = gemini
	}

	suspensionStore := suspension.NewPGStore(dbPool)
	suspensions := suspension.NewService(suspensionStore, cfg.Policy, rootLog.WithField("module", "suspension"))

	strikeStore := strike.NewPGStore(dbPool)
	strikes := strike.NewService(strikeStore, suspensions, cfg.Policy, rootLog.WithField("module", "strike"))

	violationStore := violation.NewPGStore(dbPool)
	violations := violation.NewService(violationStore, strikes, summarizer, rootLog.WithField("module", "violation"))

	appealStore := appeal.NewPGStore(dbPool)
	appeals := appeal.NewService(appealStore, strikes, suspensions, rootLog.WithField("module", "appeal"))

	// Real settlement is out of process; the log processor records the money
	// movement this service decides.
	disputeStore := dispute.NewPGStore(dbPool)
	disputes := dispute.NewService(disputeStore, &dispute.LogProcessor{Log: rootLog.WithField("module", "payments")},
		strikes, rootLog.WithField("module", "dispute"))

	completionStore := earlycomp.NewPGStore(dbPool)
	completions := earlycomp.NewService(completionStore, cfg.Policy, rootLog.WithField("module", "earlycomp"))

	contactStore := emergency.NewPGContactStore(dbPool)
	emergencyStore := emergency.NewPGStore(dbPool)
	emergencies := emergency.NewService(emergencyStore, contactStore, dispatcher, disputes,
		rootLog.WithField("module", "emergency"))

	profileStore := profile.NewPGStore(dbPool)
	profiles := profile.NewService(profileStore, strikes, suspensions, violations,
		rootLog.WithField("module", "profile"))

	ports := session.Ports{
		SpeedStore:     speed.NewPGStore(dbPool),
		DeviationStore: deviation.NewPGStore(dbPool),
		Violations:     violations,
		Completions:    completions,
		Profiles:       profiles,
		Emergencies:    emergencies,
		Feed:           session.NewRedisFeed(redisClient),
	}
	var limits handlers.SpeedLimits
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		ports.Routes = routes
		limitSvc, err := maps.NewSpeedLimitService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatalf("maps init: %v", err)
		}
		limits = limitSvc
	} else {
		rootLog.Warn("no maps api key; route recalculation and limit lookups disabled")
	}
	registry := session.NewRegistry(ports, cfg.Policy, rootLog.WithField("module", "session"))

	server := httptransport.NewServer(httptransport.ServerDeps{
		Trips:    handlers.NewTripHandler(registry, completions, emergencies, violations, limits),
		Safety:   handlers.NewSafetyHandler(profiles, strikes, suspensions, appeals, disputes),
		Admin:    handlers.NewAdminHandler(violations, appeals, disputes, suspensions, emergencies, completions),
		Sessions: registry,
		Limits:   limits,
		Verifier: verifier,
		Log:      rootLog.WithField("component", "http"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, cfg.HTTP.Addr) })
	g.Go(func() error { return registry.Run(gctx) })
	g.Go(func() error {
		strikes.RunExpirySweep(gctx)
		return nil
	})
	g.Go(func() error {
		suspensions.RunExpirySweep(gctx, cfg.Policy.Strikes.SweepInterval)
		return nil
	})
	g.Go(func() error {
		completions.RunTimeoutSweep(gctx, time.Minute, func(ctx context.Context, ec *earlycomp.EarlyCompletion) {
			// The rider never answered the completion prompt; open an alert on
			// the trip so an operator follows up.
			_, err := emergencies.Raise(ctx, emergency.RaiseCommand{
				TripID:   ec.TripID,
				UserID:   ec.DriverID,
				UserType: emergency.UserDriver,
				Type:     emergency.TypeNoResponseAlert,
				Location: ec.ActualLocation,
				Context:  emergency.Snapshot{DriverID: ec.DriverID},
				At:       time.Now(),
			})
			if err != nil {
				rootLog.WithError(err).WithField("trip_id", ec.TripID).
					Error("escalating unanswered completion failed")
			}
		})
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}
