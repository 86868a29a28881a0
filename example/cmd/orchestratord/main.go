// Command orchestratord runs a conversational node: it resolves turns through
// the tick session manager, opens and resumes hand-offs to peer bots, and
// exposes the orchestration wire protocol so peers can delegate turns to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"goa.design/clue/debug"
	"goa.design/clue/health"
	"goa.design/clue/log"

	dialogmongo "github.com/dialogmesh/dialogmesh/features/dialog/mongo"
	handoffredis "github.com/dialogmesh/dialogmesh/features/handoff/redis"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration/httpclient"
	"github.com/dialogmesh/dialogmesh/runtime/orchestration/primary"
	"github.com/dialogmesh/dialogmesh/runtime/telemetry"
	"github.com/dialogmesh/dialogmesh/runtime/tick"
)

func main() {
	var (
		httpPortF   = flag.String("http-port", "8000", "HTTP listen port")
		botIDF      = flag.String("bot-id", "orchestrator", "Identifier of this node in orchestration exchanges")
		mongoURLF   = flag.String("mongo-url", "mongodb://localhost:27017", "MongoDB connection string")
		mongoDBF    = flag.String("mongo-db", "dialogmesh", "MongoDB database name")
		redisURLF   = flag.String("redis-url", "redis://localhost:6379", "Redis connection string")
		handoffTTLF = flag.Duration("handoff-ttl", time.Hour, "Hand-off expiry; zero disables it")
		peersF      = flag.String("peers", "", "Peer bots as comma-separated id=url pairs")
		startF      = flag.String("start-intents", "other_bot", "Comma-separated intents that open a hand-off")
		stopF       = flag.String("stop-intents", "stop", "Comma-separated intents that close a hand-off")
		comebackF   = flag.String("comeback-story", "welcome", "Story resumed after a hand-off ends")
		dbgF        = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	logger := telemetry.NewClueLogger()

	// Connect the stores.
	mongoCtx, cancelMongo := context.WithTimeout(ctx, 10*time.Second)
	mongoClient, err := mongodriver.Connect(mongoCtx, mongooptions.Client().ApplyURI(*mongoURLF))
	cancelMongo()
	if err != nil {
		log.Fatalf(ctx, err, "connect to MongoDB at %q", *mongoURLF)
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()
	dialogStore, err := dialogmongo.New(dialogmongo.Options{
		Client:   mongoClient,
		Database: *mongoDBF,
	})
	if err != nil {
		log.Fatalf(ctx, err, "initialize dialog store")
	}

	redisOpts, err := goredis.ParseURL(*redisURLF)
	if err != nil {
		log.Fatalf(ctx, err, "parse Redis URL %q", *redisURLF)
	}
	redisClient := goredis.NewClient(redisOpts)
	defer func() {
		_ = redisClient.Close()
	}()
	handoffRepo, err := handoffredis.New(handoffredis.Options{
		Client: redisClient,
		TTL:    *handoffTTLF,
	})
	if err != nil {
		log.Fatalf(ctx, err, "initialize handoff repository")
	}

	// Build the orchestration layer: one HTTP client per configured peer.
	peers, err := parsePeers(*peersF)
	if err != nil {
		log.Fatalf(ctx, err, "parse peers %q", *peersF)
	}
	bots := make([]orchestration.BotClient, 0, len(peers))
	targets := make([]string, 0, len(peers))
	for _, peer := range peers {
		bot, err := httpclient.New(peer)
		if err != nil {
			log.Fatalf(ctx, err, "build client for peer %q", peer.ID)
		}
		bots = append(bots, bot)
		targets = append(targets, peer.ID)
		log.Print(ctx, log.KV{K: "peer", V: peer.ID}, log.KV{K: "url", V: peer.URL})
	}
	router := orchestration.NewRouter(bots,
		orchestration.WithRouterLogger(logger),
		orchestration.WithRouterMetrics(telemetry.NewClueMetrics()),
	)

	// The local bot answers turns with the tick session manager.
	manager := tick.NewManager(tick.WithLogger(logger))
	local := newLocalBot(*botIDF, manager, dialogStore, logger)

	node := &turnNode{
		cfg: primary.Config{
			OrchestratorID:  *botIDF,
			EligibleTargets: targets,
			StartIntents:    splitList(*startF),
			StopIntents:     splitList(*stopF),
			ComebackStory:   *comebackF,
		},
		orchestrator: router,
		repo:         handoffRepo,
		local:        local,
		logger:       logger,
	}

	// Assemble the HTTP surface: turn resolution, the orchestration wire
	// protocol for peers, and health checks.
	orchServer, err := orchestration.NewServer(local, orchestration.WithServerLogger(logger))
	if err != nil {
		log.Fatalf(ctx, err, "initialize orchestration server")
	}
	mux := http.NewServeMux()
	mux.Handle("POST /turns", node)
	mux.Handle("/orchestration/", orchServer.Handler())
	checker := health.NewChecker(dialogStore, handoffRepo)
	mux.Handle("GET /healthz", health.Handler(checker))
	mux.Handle("GET /livez", health.Handler(checker))
	if *dbgF {
		debug.MountPprofHandlers(mux)
		debug.MountDebugLogEnabler(mux)
	}

	var handler http.Handler = mux
	if *dbgF {
		handler = debug.HTTP()(handler)
	}
	handler = log.HTTP(ctx)(handler)

	// Stop on SIGINT/SIGTERM or on a server error.
	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	ctx, cancel := context.WithCancel(ctx)
	addr := net.JoinHostPort("", *httpPortF)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 60 * time.Second}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			log.Printf(ctx, "HTTP server listening on %q", addr)
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", addr)

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()
	log.Printf(ctx, "exited")
}

// parsePeers parses the -peers flag: "banking=http://banking:8000,weather=...".
func parsePeers(raw string) ([]orchestration.TargetBot, error) {
	if raw == "" {
		return nil, nil
	}
	entries := strings.Split(raw, ",")
	peers := make([]orchestration.TargetBot, 0, len(entries))
	for _, entry := range entries {
		id, url, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || id == "" || url == "" {
			return nil, fmt.Errorf("invalid peer %q, want id=url", entry)
		}
		peers = append(peers, orchestration.TargetBot{ID: id, URL: url})
	}
	return peers, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
