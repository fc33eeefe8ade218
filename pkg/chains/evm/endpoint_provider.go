package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/sigweihq/billpay/pkg/constants"
)

// ChainListURL is the public chainlist.org RPC directory
const ChainListURL = "https://chainlist.org/rpcs.json"

// ChainListResponse represents a chain entry from chainlist.org/rpcs.json
type ChainListResponse struct {
	ChainID int `json:"chainId"`
	RPC     []struct {
		URL string `json:"url"`
	} `json:"rpc"`
}

// ChainListEndpointProvider fetches RPC endpoints from chainlist.org
// and performs health checks to prioritize reliable endpoints
type ChainListEndpointProvider struct {
	endpoints  map[int64][]string // chainID -> []rpc_urls
	sourceURL  string
	httpClient *http.Client
	healthy    func(ctx context.Context, endpoint string) bool
	logger     *slog.Logger
	mu         sync.RWMutex
}

// NewChainListEndpointProvider creates a provider that fetches from chainlist.org
func NewChainListEndpointProvider(logger *slog.Logger) *ChainListEndpointProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainListEndpointProvider{
		endpoints:  make(map[int64][]string),
		sourceURL:  ChainListURL,
		httpClient: &http.Client{Timeout: constants.ChainListTimeout},
		healthy:    isEndpointHealthy,
		logger:     logger,
	}
}

// GetEndpoints returns the prioritized endpoints for a network.
// Falls back to official endpoints until the first refresh completes.
func (p *ChainListEndpointProvider) GetEndpoints(network string) []string {
	chainID, ok := constants.NetworkToChainID[network]
	if !ok {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	endpoints := p.endpoints[chainID]
	if len(endpoints) == 0 {
		return constants.OfficialRPCEndpoints[network]
	}

	return append([]string(nil), endpoints...)
}

// RefreshEndpoints fetches fresh endpoints for the given networks and
// health checks them. With async set, the official endpoints are installed
// immediately and discovery continues in the background.
func (p *ChainListEndpointProvider) RefreshEndpoints(ctx context.Context, networks []string, async bool) error {
	if async {
		p.mu.Lock()
		p.setOfficialEndpoints(networks)
		p.mu.Unlock()

		go func() {
			if err := p.refresh(context.WithoutCancel(ctx), networks); err != nil {
				p.logger.Warn("background chainlist refresh failed", "error", err)
			}
		}()
		return nil
	}
	return p.refresh(ctx, networks)
}

func (p *ChainListEndpointProvider) refresh(ctx context.Context, networks []string) error {
	chainListData, err := p.fetchAllChains(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[int64][]string)
	for _, network := range networks {
		chainID, ok := constants.NetworkToChainID[network]
		if !ok {
			continue
		}
		fresh[chainID] = append(fresh[chainID], constants.OfficialRPCEndpoints[network]...)
	}
	addChainlistEndpoints(fresh, chainListData)

	// Health checks run without holding the lock
	for chainID, endpoints := range fresh {
		fresh[chainID] = p.prioritize(ctx, chainID, dedupe(endpoints))
	}

	p.mu.Lock()
	for chainID, endpoints := range fresh {
		p.endpoints[chainID] = endpoints
	}
	p.mu.Unlock()
	return nil
}

// setOfficialEndpoints sets the official reliable endpoints; caller holds the lock
func (p *ChainListEndpointProvider) setOfficialEndpoints(networks []string) {
	for _, network := range networks {
		chainID, ok := constants.NetworkToChainID[network]
		if !ok {
			continue
		}
		if endpoints := constants.OfficialRPCEndpoints[network]; len(endpoints) > 0 {
			p.endpoints[chainID] = append([]string(nil), endpoints...)
		}
	}
}

// fetchAllChains fetches chain data from chainlist.org
func (p *ChainListEndpointProvider) fetchAllChains(ctx context.Context) ([]ChainListResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chainlist request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chainlist data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chainlist.org returned status %d", resp.StatusCode)
	}

	var chains []ChainListResponse
	limited := io.LimitReader(resp.Body, int64(constants.MaxResponseBodySize))
	if err := json.NewDecoder(limited).Decode(&chains); err != nil {
		return nil, fmt.Errorf("failed to decode chainlist data: %w", err)
	}

	return chains, nil
}

// addChainlistEndpoints adds https endpoints for the chains already present in dst
func addChainlistEndpoints(dst map[int64][]string, chainListData []ChainListResponse) {
	for _, chain := range chainListData {
		chainID := int64(chain.ChainID)
		if _, wanted := dst[chainID]; !wanted {
			continue
		}
		for _, rpc := range chain.RPC {
			// Only include HTTPS URLs and exclude templated URLs
			if strings.HasPrefix(rpc.URL, "https://") && !strings.Contains(rpc.URL, "${") {
				dst[chainID] = append(dst[chainID], rpc.URL)
			}
		}
	}
}

// prioritize puts healthy endpoints first and keeps unhealthy ones as backup
func (p *ChainListEndpointProvider) prioritize(ctx context.Context, chainID int64, endpoints []string) []string {
	var healthyEndpoints, unhealthyEndpoints []string
	for _, endpoint := range endpoints {
		if p.healthy(ctx, endpoint) {
			healthyEndpoints = append(healthyEndpoints, endpoint)
		} else {
			unhealthyEndpoints = append(unhealthyEndpoints, endpoint)
		}
	}

	p.logger.Debug("health check complete",
		"chainID", chainID,
		"healthy", len(healthyEndpoints),
		"unhealthy", len(unhealthyEndpoints))

	return append(healthyEndpoints, unhealthyEndpoints...)
}

func dedupe(endpoints []string) []string {
	seen := make(map[string]struct{}, len(endpoints))
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
