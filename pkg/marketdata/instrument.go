package marketdata

import (
	"sort"
	"strings"

	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/provider"
)

// InstrumentClass groups instruments with similar price scale and volatility.
// It drives the synthetic generator parameters.
type InstrumentClass string

const (
	ClassMajor    InstrumentClass = "major"
	ClassLargeCap InstrumentClass = "large_cap"
	ClassAltcoin  InstrumentClass = "altcoin"
)

// Instrument maps a user-facing symbol to the identifier each provider expects.
type Instrument struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Class         InstrumentClass `json:"class"`
	CoinGeckoID   string          `json:"coingeckoId"`
	YahooSymbol   string          `json:"yahooSymbol"`
	BinanceSymbol string          `json:"binanceSymbol"`
	PolygonTicker string          `json:"polygonTicker"`
}

// ProviderSymbol returns the identifier used by the given provider.
func (i Instrument) ProviderSymbol(providerType provider.ProviderType) string {
	switch providerType {
	case provider.ProviderCoinGecko:
		return i.CoinGeckoID
	case provider.ProviderYahoo:
		return i.YahooSymbol
	case provider.ProviderBinance:
		return i.BinanceSymbol
	case provider.ProviderPolygon:
		return i.PolygonTicker
	default:
		return i.Symbol
	}
}

// DefaultInstruments is the set of supported cryptocurrencies.
var DefaultInstruments = []Instrument{
	{
		Symbol:        "BTC-USD",
		Name:          "Bitcoin",
		Class:         ClassMajor,
		CoinGeckoID:   "bitcoin",
		YahooSymbol:   "BTC-USD",
		BinanceSymbol: "BTCUSDT",
		PolygonTicker: "X:BTCUSD",
	},
	{
		Symbol:        "ETH-USD",
		Name:          "Ethereum",
		Class:         ClassLargeCap,
		CoinGeckoID:   "ethereum",
		YahooSymbol:   "ETH-USD",
		BinanceSymbol: "ETHUSDT",
		PolygonTicker: "X:ETHUSD",
	},
	{
		Symbol:        "ADA-USD",
		Name:          "Cardano",
		Class:         ClassAltcoin,
		CoinGeckoID:   "cardano",
		YahooSymbol:   "ADA-USD",
		BinanceSymbol: "ADAUSDT",
		PolygonTicker: "X:ADAUSD",
	},
	{
		Symbol:        "XRP-USD",
		Name:          "XRP",
		Class:         ClassAltcoin,
		CoinGeckoID:   "ripple",
		YahooSymbol:   "XRP-USD",
		BinanceSymbol: "XRPUSDT",
		PolygonTicker: "X:XRPUSD",
	},
	{
		Symbol:        "SOL-USD",
		Name:          "Solana",
		Class:         ClassLargeCap,
		CoinGeckoID:   "solana",
		YahooSymbol:   "SOL-USD",
		BinanceSymbol: "SOLUSDT",
		PolygonTicker: "X:SOLUSD",
	},
}

// InstrumentRegistry is a read-only symbol table. Safe for concurrent use.
type InstrumentRegistry struct {
	bySymbol map[string]Instrument
	order    []string
}

// NewInstrumentRegistry builds a registry from the given instruments, keyed on their canonical symbol.
func NewInstrumentRegistry(instruments ...Instrument) *InstrumentRegistry {
	registry := &InstrumentRegistry{
		bySymbol: make(map[string]Instrument, len(instruments)),
		order:    make([]string, 0, len(instruments)),
	}

	for _, instrument := range instruments {
		symbol := CanonicalSymbol(instrument.Symbol)
		if _, exists := registry.bySymbol[symbol]; !exists {
			registry.order = append(registry.order, symbol)
		}

		instrument.Symbol = symbol
		registry.bySymbol[symbol] = instrument
	}

	return registry
}

// DefaultInstrumentRegistry returns a registry holding DefaultInstruments.
func DefaultInstrumentRegistry() *InstrumentRegistry {
	return NewInstrumentRegistry(DefaultInstruments...)
}

// CanonicalSymbol normalizes user input such as "btcusd", "btc_usd" or " BTC/USD " to "BTC-USD".
func CanonicalSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("_", "-", "/", "-").Replace(s)

	if !strings.Contains(s, "-") && len(s) > 3 && strings.HasSuffix(s, "USD") {
		s = s[:len(s)-3] + "-USD"
	}

	return s
}

// Lookup resolves a symbol to its instrument.
func (r *InstrumentRegistry) Lookup(symbol string) (Instrument, error) {
	instrument, ok := r.bySymbol[CanonicalSymbol(symbol)]
	if !ok {
		return Instrument{}, errors.Newf(errors.ErrCodeUnsupportedInstrument, "unsupported instrument: %q (supported: %s)", symbol, strings.Join(r.Symbols(), ", "))
	}

	return instrument, nil
}

// Symbols returns the registered symbols in registration order.
func (r *InstrumentRegistry) Symbols() []string {
	symbols := make([]string, len(r.order))
	copy(symbols, r.order)

	return symbols
}

// SortedSymbols returns the registered symbols in lexical order.
func (r *InstrumentRegistry) SortedSymbols() []string {
	symbols := r.Symbols()
	sort.Strings(symbols)

	return symbols
}

// All returns every registered instrument in registration order.
func (r *InstrumentRegistry) All() []Instrument {
	instruments := make([]Instrument, 0, len(r.order))
	for _, symbol := range r.order {
		instruments = append(instruments, r.bySymbol[symbol])
	}

	return instruments
}
