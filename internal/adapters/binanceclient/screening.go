package binanceclient

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
)

// ListSymbols returns the perpetual contracts currently trading in the
// configured quote asset, sorted by name.
func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	op := "ListSymbols"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	symbols := tradablePerpetuals(info.Symbols, c.screen.QuoteAsset)
	c.logger.Info(ctx, op+" completed", map[string]interface{}{"quoteAsset": c.screen.QuoteAsset, "count": len(symbols)})
	return symbols, nil
}

// Filter keeps the symbols whose 24h statistics pass the volume and change
// thresholds, ranked by quote volume and capped at MaxSymbols.
func (c *Client) Filter(ctx context.Context, symbols []string) ([]string, error) {
	op := "Filter"
	if len(symbols) == 0 {
		return []string{}, nil
	}
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	selected := screen(stats, symbols, c.screen)
	c.logger.Info(ctx, op+" completed", map[string]interface{}{"candidates": len(symbols), "selected": len(selected)})
	return selected, nil
}

func tradablePerpetuals(all []futures.Symbol, quoteAsset string) []string {
	out := make([]string, 0)
	for _, s := range all {
		if string(s.ContractType) != "PERPETUAL" || s.Status != "TRADING" {
			continue
		}
		if quoteAsset != "" && s.QuoteAsset != quoteAsset {
			continue
		}
		out = append(out, s.Symbol)
	}
	sort.Strings(out)
	return out
}

type candidate struct {
	symbol      string
	quoteVolume float64
}

func screen(stats []*futures.PriceChangeStats, symbols []string, cfg ScreenConfig) []string {
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	passed := make([]candidate, 0)
	for _, st := range stats {
		if st == nil || !wanted[st.Symbol] {
			continue
		}
		quoteVolume, err := strconv.ParseFloat(st.QuoteVolume, 64)
		if err != nil {
			continue
		}
		change, err := strconv.ParseFloat(st.PriceChangePercent, 64)
		if err != nil {
			continue
		}
		if quoteVolume < cfg.MinQuoteVolume || math.Abs(change) < cfg.MinAbsChangePct {
			continue
		}
		passed = append(passed, candidate{symbol: st.Symbol, quoteVolume: quoteVolume})
	}

	sort.SliceStable(passed, func(i, j int) bool {
		if passed[i].quoteVolume != passed[j].quoteVolume {
			return passed[i].quoteVolume > passed[j].quoteVolume
		}
		return passed[i].symbol < passed[j].symbol
	})
	if cfg.MaxSymbols > 0 && len(passed) > cfg.MaxSymbols {
		passed = passed[:cfg.MaxSymbols]
	}

	out := make([]string, len(passed))
	for i, p := range passed {
		out[i] = p.symbol
	}
	return out
}
