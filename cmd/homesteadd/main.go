package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"homestead/config"
	"homestead/core"
	"homestead/core/state"
	"homestead/gateway"
	"homestead/metadata"
	"homestead/observability/logging"
	"homestead/rpc"
	"homestead/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("HOMESTEAD_ENV"))
	logger := logging.Setup("homesteadd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	inspector, err := cfg.InspectorAccount()
	if err != nil {
		panic(fmt.Sprintf("Failed to decode inspector address: %v", err))
	}
	lender, err := cfg.LenderAccount()
	if err != nil {
		panic(fmt.Sprintf("Failed to decode lender address: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	st, err := state.Open(db)
	if err != nil {
		panic(fmt.Sprintf("Failed to open state: %v", err))
	}

	node := core.NewNode(st, inspector, lender, logger)

	if strings.TrimSpace(os.Getenv(rpc.AuthTokenEnv)) == "" {
		logger.Warn("rpc auth token not set; mutating methods will be rejected",
			slog.String("env", rpc.AuthTokenEnv))
	}

	gatewaySrv := gateway.NewServer(node, metadata.NewClient(cfg.MetadataGatewayURL), logger, gateway.Config{
		ListenAddress:   cfg.GatewayAddress,
		RateLimitPerMin: float64(cfg.RateLimitPerMinute),
		RateLimitBurst:  cfg.RateLimitPerMinute,
	})
	go func() {
		if err := gatewaySrv.Start(cfg.GatewayAddress); err != nil {
			logger.Error("Gateway server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	logger.Info("node ready",
		slog.String("rpc", cfg.RPCAddress),
		slog.String("gateway", cfg.GatewayAddress),
		slog.String("inspector", cfg.InspectorAddress),
		slog.String("lender", cfg.LenderAddress))

	rpcServer := rpc.NewServer(node)
	if err := rpcServer.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
