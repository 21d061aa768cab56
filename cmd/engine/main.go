package main

import (
	"crypto/ed25519"
	"flag"
	"log"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/bhagyabanghadai/VEIL-MVP/internal/api"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/config"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/events"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/identity"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/intent"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/judge"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/ledger"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/pipeline"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/policy"
	"github.com/bhagyabanghadai/VEIL-MVP/internal/store"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration rejected: %v", err)
	}
	dev := cfg.IsDev()

	// Shared KV state. Production refuses to run without it; dev falls
	// back to in-memory stores so the engine works on a laptop.
	var (
		nonces intent.NonceStore
		cache  judge.VerdictCache
	)
	if kv, err := store.NewRedisStore(cfg.Stores.KVURL); err != nil {
		if !dev {
			log.Fatalf("KV store required in prod: %v", err)
		}
		slog.Warn("KV store unreachable, using in-memory stores", "error", err)
		mem := store.NewMemoryStore()
		nonces, cache = mem, mem
	} else {
		defer kv.Close()
		nonces, cache = kv, kv
	}

	var inspector identity.RuntimeInspector
	if di, err := identity.NewDockerInspector(); err != nil {
		if !dev {
			log.Fatalf("Container runtime required in prod: %v", err)
		}
		slog.Warn("Docker socket unreachable, runtime identity disabled", "error", err)
		inspector = identity.StaticInspector{Fingerprint: identity.FingerprintUnknown}
	} else {
		inspector = di
	}

	var signingKey ed25519.PrivateKey
	if cfg.Ledger.KeyFile != "" {
		signingKey, err = ledger.LoadSigningKey(cfg.Ledger.KeyFile)
		if err != nil {
			log.Fatalf("Signing key unusable: %v", err)
		}
	} else if !dev {
		log.Fatalf("LEDGER_KEY_FILE required in prod; ephemeral keys are dev-only")
	}

	recorder, err := ledger.NewRecorder(cfg.Ledger.File, signingKey)
	if err != nil {
		log.Fatalf("Ledger init failed: %v", err)
	}
	defer recorder.Close()

	bus := events.NewBus()
	stats := api.NewStatsAggregator(bus)
	defer stats.Close()
	if err := stats.SeedFromLedger(cfg.Ledger.File); err != nil {
		slog.Warn("Stats seed failed", "error", err)
	}

	// Fixed composition, outermost first: the ledger sees every outcome,
	// inner gates see only what outer gates admit.
	chain := pipeline.NewChain(
		ledger.NewGate(recorder, bus),
		identity.NewGate(cfg.Security.InternalToken, cfg.Security.AuthorizedProxyHash, dev, inspector),
		intent.NewGate(nonces, dev),
		policy.NewGate(policy.NewEvaluatorClient(cfg.Services.PolicyURL)),
		judge.NewGate(cache, judge.NewModelClient(cfg.Services.ModelURL, cfg.Services.ModelName)),
	)

	server := api.NewServer(chain, stats, cfg.Server.Env)
	log.Printf("VEIL engine online. Env: %s", cfg.Server.Env)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
