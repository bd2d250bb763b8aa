package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"devmarket/config"
	"devmarket/core/events"
	"devmarket/core/state"
	"devmarket/core/types"
	"devmarket/crypto"
	"devmarket/native/market"
	"devmarket/observability/logging"
	"devmarket/rpc"
	"devmarket/storage"
)

const rpcTokenEnv = "DEVMARKET_RPC_TOKEN"

// logEmitter forwards settlement events to the structured logger so operators
// can follow escrow activity without an external indexer.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	args := []any{slog.String("type", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if e := carrier.Event(); e != nil {
			if id := e.Attributes["eventId"]; id != "" {
				args = append(args, slog.String("eventId", id))
			}
		}
	}
	l.logger.Info("settlement event", args...)
}

func parseAllocations(raw map[string]string) (map[[20]byte]*big.Int, error) {
	allocations := make(map[[20]byte]*big.Int, len(raw))
	for addr, amount := range raw {
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(addr))
		if err != nil {
			return nil, fmt.Errorf("allocation address %q: %w", addr, err)
		}
		value, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok || value.Sign() < 0 {
			return nil, fmt.Errorf("allocation amount %q for %q", amount, addr)
		}
		allocations[decoded.Bytes()] = value
	}
	return allocations, nil
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DEVMARKET_ENV"))
	logger := logging.Setup("devmarketd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	owner, err := crypto.DecodeAddress(cfg.Owner)
	if err != nil {
		logger.Error("Invalid owner address in config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)

	allocations, err := parseAllocations(cfg.GenesisAllocations)
	if err != nil {
		logger.Error("Invalid genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}
	applied, err := manager.ApplyGenesis(allocations)
	if err != nil {
		logger.Error("Failed to apply genesis allocations", slog.Any("error", err))
		os.Exit(1)
	}
	if applied {
		logger.Info("Applied genesis allocations", slog.Int("accounts", len(allocations)))
	}

	engine := market.NewEngine(owner.Bytes())
	engine.SetState(manager)
	engine.SetEmitter(logEmitter{logger: logger})

	token := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if token == "" {
		token = strings.TrimSpace(cfg.RPCToken)
	}
	if token == "" {
		logger.Warn("No RPC token configured; mutating methods will be rejected",
			slog.String("env", rpcTokenEnv))
	}

	server := rpc.NewServer(engine, token, logger)
	logger.Info("devmarket settlement daemon starting",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("owner", cfg.Owner))
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
