package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/forecast"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
)

// formatPrice keeps cents above a dollar and six decimals below.
func formatPrice(price float64) string {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return "n/a"
	}

	places := int32(6)
	if math.Abs(price) >= 1 {
		places = 2
	}

	return decimal.NewFromFloat(price).StringFixed(places)
}

func formatPercent(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "n/a"
	}

	return decimal.NewFromFloat(value).StringFixed(2)
}

func syntheticBanner(reason string) string {
	text := "SYNTHETIC DATA: live prices were unavailable, values below are generated"
	if reason != "" {
		text += "\nreason: " + reason
	}

	return BannerStyle.Render(text)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	return table
}

func renderSeries(w io.Writer, result marketdata.FetchResult) {
	series := result.Series

	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("%s (%s)", result.Instrument.Name, series.Symbol)))
	fmt.Fprintln(w, MutedStyle.Render(fmt.Sprintf("%d points, %s to %s, source %s",
		series.Len(),
		series.First().Time.Format(types.DateLayout),
		series.Last().Time.Format(types.DateLayout),
		result.Source)))

	if result.Source == types.SourceSynthetic {
		fmt.Fprintln(w, syntheticBanner(result.FallbackReason))
	}

	table := newTable(w, "Date", "Close")
	for _, point := range series.Points {
		table.Append([]string{point.Time.Format(types.DateLayout), formatPrice(point.Close)})
	}

	table.Render()
}

func renderJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func renderReport(w io.Writer, report *forecast.Report, rows int) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("%s (%s)", report.Instrument.Name, report.Instrument.Symbol)))

	if report.IsSynthetic() {
		fmt.Fprintln(w, syntheticBanner(report.FallbackReason))
	}

	fmt.Fprintf(w, "Current price: $%s\n", formatPrice(report.CurrentPrice))
	fmt.Fprintln(w, MutedStyle.Render(fmt.Sprintf("model %s, %d history points, horizon %d, change %s%%, volatility %.4f",
		report.Model,
		len(report.History),
		report.Horizon,
		formatPercent(report.Summary.ChangePercent),
		report.Summary.Volatility)))

	table := newTable(w, "Date", "Forecast", "Lower", "Upper")
	for _, point := range report.Tail(rows) {
		table.Append([]string{
			point.Time.Format(types.DateLayout),
			formatPrice(point.Yhat),
			formatPrice(point.YhatLower),
			formatPrice(point.YhatUpper),
		})
	}

	table.Render()
}

func renderInstruments(w io.Writer, instruments []marketdata.Instrument) {
	fmt.Fprintln(w, TitleStyle.Render("Instruments"))

	table := newTable(w, "Symbol", "Name", "Class", "CoinGecko", "Yahoo", "Binance", "Polygon")
	for _, instrument := range instruments {
		table.Append([]string{
			instrument.Symbol,
			instrument.Name,
			string(instrument.Class),
			instrument.CoinGeckoID,
			instrument.YahooSymbol,
			instrument.BinanceSymbol,
			instrument.PolygonTicker,
		})
	}

	table.Render()
}

func renderProviders(w io.Writer) {
	fmt.Fprintln(w, TitleStyle.Render("Providers"))

	table := newTable(w, "Name", "Provider", "Description", "API key")
	for _, name := range marketdata.GetSupportedProviders() {
		info, err := marketdata.GetProviderInfo(name)
		if err != nil {
			continue
		}

		keyRequirement := "not required"
		if info.RequiresAuth {
			keyRequirement = "required"
		}

		table.Append([]string{info.Name, info.DisplayName, info.Description, keyRequirement})
	}

	table.Render()
}
