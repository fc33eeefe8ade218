package evm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigweihq/billpay/pkg/chains"
	"github.com/sigweihq/billpay/pkg/constants"
)

// InitEVMChains registers adapters for the given networks using endpoints
// discovered from chainlist.org. Official endpoints are used immediately;
// discovery and health checks continue in the background and adapters are
// re-registered every constants.EndpointRefreshInterval until ctx is done.
func InitEVMChains(ctx context.Context, logger *slog.Logger, networks ...string) (*chains.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := chains.InitGlobalRegistry()
	if len(networks) == 0 {
		return registry, nil
	}

	provider := NewChainListEndpointProvider(logger)
	if err := provider.RefreshEndpoints(ctx, networks, true); err != nil {
		logger.Warn("initial endpoint refresh failed, using official endpoints only", "error", err)
	}

	registerAdapters(logger, registry, networks, provider.GetEndpoints)

	go startBackgroundRefresh(ctx, logger, provider, registry, networks)

	return registry, nil
}

// InitEVMChainsWithEndpoints initializes EVM chains with user-provided endpoints
func InitEVMChainsWithEndpoints(logger *slog.Logger, endpoints map[string][]string) (*chains.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	registry := chains.InitGlobalRegistry()

	networks := make([]string, 0, len(endpoints))
	for network := range endpoints {
		networks = append(networks, network)
	}
	registerAdapters(logger, registry, networks, func(network string) []string {
		return endpoints[network]
	})

	return registry, nil
}

func registerAdapters(logger *slog.Logger, registry *chains.Registry, networks []string, endpointsFor func(string) []string) {
	for _, network := range networks {
		endpoints := endpointsFor(network)
		if len(endpoints) == 0 {
			logger.Warn("no endpoints available for network", "network", network)
			continue
		}

		adapter, err := NewEVMAdapter(network, endpoints, logger)
		if err != nil {
			logger.Warn("failed to create EVM adapter", "network", network, "error", err)
			continue
		}

		if err := registry.Register(adapter); err != nil {
			logger.Warn("failed to register EVM adapter", "network", network, "error", err)
			continue
		}
		logger.Info("registered EVM adapter", "network", network, "endpoints", len(endpoints))
	}
}

// startBackgroundRefresh refreshes endpoints and re-registers adapters periodically
func startBackgroundRefresh(ctx context.Context, logger *slog.Logger, provider *ChainListEndpointProvider, registry *chains.Registry, networks []string) {
	ticker := time.NewTicker(constants.EndpointRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := provider.RefreshEndpoints(ctx, networks, false); err != nil {
			logger.Warn("background endpoint refresh failed", "error", err)
			continue
		}
		registerAdapters(logger, registry, networks, provider.GetEndpoints)
	}
}
