package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sigweihq/billpay/pkg/constants"
	"github.com/sigweihq/billpay/pkg/utils"
)

// ErrUnmappedPair is returned by a source that has no rate for a pair
var ErrUnmappedPair = errors.New("unmapped currency pair")

// Source fetches a current conversion rate
type Source interface {
	FetchRate(ctx context.Context, crypto, fiat string) (decimal.Decimal, error)
}

// StaticSource serves rates from a fixed table
type StaticSource struct {
	rates map[string]decimal.Decimal
}

// NewStaticSource creates a source from a pair-key → rate table
func NewStaticSource(rates map[string]decimal.Decimal) *StaticSource {
	copied := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return &StaticSource{rates: copied}
}

// NewPeggedSource returns the table of Mento stablecoins at their 1:1 peg
func NewPeggedSource() *StaticSource {
	one := decimal.NewFromInt(1)
	return NewStaticSource(map[string]decimal.Decimal{
		PairKey("cUSD", "USD"):  one,
		PairKey("USDT", "USD"):  one,
		PairKey("USDC", "USD"):  one,
		PairKey("cEUR", "EUR"):  one,
		PairKey("cREAL", "BRL"): one,
		PairKey("eXOF", "XOF"):  one,
		PairKey("cKES", "KES"):  one,
		PairKey("PUSO", "PHP"):  one,
		PairKey("cCOP", "COP"):  one,
		PairKey("XOF", "XOF"):   one,
		PairKey("KES", "KES"):   one,
		PairKey("PHP", "PHP"):   one,
		PairKey("COP", "COP"):   one,
		PairKey("GHS", "GHS"):   one,
		PairKey("GBP", "GBP"):   one,
		PairKey("ZAR", "ZAR"):   one,
		PairKey("AUD", "AUD"):   one,
	})
}

func (s *StaticSource) FetchRate(_ context.Context, crypto, fiat string) (decimal.Decimal, error) {
	rate, ok := s.rates[PairKey(crypto, fiat)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnmappedPair, PairKey(crypto, fiat))
	}
	return rate, nil
}

// rateResponse is the price feed payload; the rate may be a JSON string or number
type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

// HTTPSource fetches rates from a JSON price feed:
// GET {baseURL}/rates?base={crypto}&quote={fiat} → {"rate": "1.0"}
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates a price feed client. The URL must be https unless it points at localhost.
func NewHTTPSource(baseURL, apiKey string, client *http.Client) (*HTTPSource, error) {
	if err := utils.ValidateServiceURL(baseURL); err != nil {
		return nil, err
	}
	if client == nil {
		client = utils.CreateHTTPClientWithTimeouts()
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}, nil
}

func (s *HTTPSource) FetchRate(ctx context.Context, crypto, fiat string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RateSourceTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("base", crypto)
	query.Set("quote", fiat)

	var headers map[string]string
	if s.apiKey != "" {
		headers = map[string]string{"X-API-Key": s.apiKey}
	}

	resp, err := utils.MakeJSONRequest[rateResponse](ctx, s.client, http.MethodGet,
		s.baseURL+"/rates?"+query.Encode(), nil, headers)
	if err != nil {
		var httpErr *utils.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrUnmappedPair, PairKey(crypto, fiat))
		}
		return decimal.Zero, fmt.Errorf("price feed request failed: %w", err)
	}
	return resp.Rate, nil
}

// FallbackSource tries each source in order and returns the first rate found
type FallbackSource []Source

func (f FallbackSource) FetchRate(ctx context.Context, crypto, fiat string) (decimal.Decimal, error) {
	var errs []error
	for _, s := range f {
		rate, err := s.FetchRate(ctx, crypto, fiat)
		if err == nil {
			return rate, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnmappedPair, PairKey(crypto, fiat))
	}
	return decimal.Zero, errors.Join(errs...)
}
