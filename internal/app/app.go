// Package app wires configuration, storage, backends, and the HTTP server
// into a running process.
package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/chat"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/config"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/guard"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/httpx"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/incident"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/judge"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/retrieval"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/router"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/server"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/storage/sqlite"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/tuner"
)

// dbThresholds reads the routing cut from the store on every decision so a
// tuner write takes effect on the next request without a restart.
type dbThresholds struct {
	store *sqlite.Store
}

func (d dbThresholds) ScoreCut() float64 {
	value, _, err := d.store.Threshold()
	if err != nil {
		log.Printf("threshold read failed, using default err=%v", err)
		return router.DefaultScoreCut
	}
	return float64(value) / 1000
}

func Main() {
	cfg := config.LoadConfig()
	httpClient := httpx.NewClient(cfg.ExternalTimeoutSeconds)
	log.Printf("Config loaded. Listen=%s DB=%s ChatTimeout=%ds ExternalHTTPTimeout=%s",
		cfg.ListenAddr, cfg.DBPath, cfg.ChatTimeoutSeconds, httpClient.Timeout)

	store, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer store.Close()

	// Backends join the registry only when their credentials are present.
	// The local responder is always registered so the degrade chain always
	// has a terminal link.
	clients := []backend.Client{backend.NewLocalResponder(backend.IDLocal)}
	if cfg.AnthropicAPIKey != "" {
		clients = append(clients, backend.NewAnthropicClient(backend.IDDeep, cfg.AnthropicAPIKey, cfg.ClaudeModel))
	}
	if cfg.TogetherAPIKey != "" {
		clients = append(clients, backend.NewTogetherClient(backend.IDDefault, cfg.TogetherAPIKey, cfg.LlamaModel, cfg.TogetherBaseURL, httpClient))
	}
	registry := backend.NewRegistry(clients...)
	log.Printf("Backends registered: %v", registry.IDs())

	var slackAPI incident.SlackPoster
	if cfg.SlackBotToken != "" && cfg.SlackOpsChannel != "" {
		slackAPI = slack.New(cfg.SlackBotToken)
	}
	notifier := incident.NewNotifier(incident.NotifierConfig{
		OneSignalAppID:  cfg.OneSignalAppID,
		OneSignalAPIKey: cfg.OneSignalAPIKey,
		AdminUserID:     cfg.AdminUserID,
		SlackOpsChannel: cfg.SlackOpsChannel,
	}, store, slackAPI, httpClient)
	defer notifier.Close()

	recorder := incident.NewRecorder(store)
	defer recorder.Close()

	invoker := guard.NewInvoker(recorder, notifier)

	var memory *retrieval.Client
	if cfg.RAGBaseURL != "" {
		memory = retrieval.NewClient(cfg.RAGBaseURL, time.Duration(cfg.RAGTimeoutSeconds)*time.Second, cfg.RAGMaxRetries, store, httpClient)
	}

	policy := router.NewPolicy(dbThresholds{store: store})
	chatSvc := chat.NewService(policy, registry, invoker, memory, store,
		time.Duration(cfg.ChatTimeoutSeconds)*time.Second)

	if cfg.TogetherAPIKey != "" {
		judgeModel := backend.NewJudgeClient(cfg.TogetherAPIKey, cfg.JudgeModel, cfg.TogetherBaseURL, httpClient)
		grader := judge.NewJudge(store, judgeModel, time.Duration(cfg.JudgeTimeoutSeconds)*time.Second)
		chatSvc.OnExchange = func(ex judge.Exchange) {
			grader.Judge(context.Background(), ex)
		}
	}

	startTunerScheduler(cfg.TunerSchedule, tuner.New(store))

	srv := server.New(chatSvc)
	log.Printf("Listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// startTunerScheduler runs the threshold tuner on a cron schedule. One pass
// per tick; the tuner's own cooldown keeps extra ticks harmless.
func startTunerScheduler(schedule string, t *tuner.Tuner) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid tuner_schedule '%s': %v — tuner disabled", schedule, err)
		return
	}
	log.Printf("Threshold tuner scheduled (cron: %s)", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			time.Sleep(next.Sub(now))

			if err := t.Tune(); err != nil {
				log.Printf("Threshold tune error: %v", err)
			}
		}
	}()
}
