package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/internal/version"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/writer"
)

func symbolFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "symbol",
		Aliases:  []string{"s"},
		Usage:    "Instrument symbol, e.g. BTC-USD",
		Required: required,
	}
}

func daysFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "days",
		Aliases: []string{"d"},
		Usage:   "Days of history ending today. Defaults to the configured value",
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "forecast",
		Usage:   "Fetch crypto price history and forecast it",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file. Defaults to $CONFIG_PATH",
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   fmt.Sprintf("Market data provider, one of %v", marketdata.GetSupportedProviders()),
			},
			&cli.BoolFlag{
				Name:  "synthetic",
				Usage: "Skip the provider and use generated data",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the web dashboard and JSON API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "host", Usage: "Interface to bind. Overrides HOST"},
					&cli.IntFlag{Name: "port", Usage: "Port to listen on. Overrides PORT"},
				},
				Action: serveAction,
			},
			{
				Name:  "fetch",
				Usage: "Print the normalized price history of an instrument",
				Flags: []cli.Flag{
					symbolFlag(true),
					daysFlag(),
					&cli.TimestampFlag{
						Name:   "start",
						Usage:  "Start date in `YYYY-MM-DD` format. Overrides --days",
						Config: cli.TimestampConfig{Layouts: []string{types.DateLayout}},
					},
					&cli.TimestampFlag{
						Name:   "end",
						Usage:  "End date in `YYYY-MM-DD` format. Defaults to today",
						Config: cli.TimestampConfig{Layouts: []string{types.DateLayout}},
					},
					&cli.StringFlag{
						Name:  "interval",
						Usage: "Sampling interval, 1d or 1w",
						Value: string(types.IntervalDaily),
					},
					&cli.BoolFlag{Name: "json", Usage: "Print the result as JSON"},
				},
				Action: fetchAction,
			},
			{
				Name:  "forecast",
				Usage: "Forecast one instrument or all of them",
				Flags: []cli.Flag{
					symbolFlag(false),
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Forecast every supported instrument"},
					daysFlag(),
					&cli.IntFlag{Name: "horizon", Usage: "Periods to forecast. Defaults to the configured value"},
					&cli.IntFlag{Name: "rows", Usage: "Forecast rows to print per instrument", Value: 5},
					&cli.BoolFlag{Name: "json", Usage: "Print the reports as JSON"},
				},
				Action: forecastAction,
			},
			{
				Name:  "export",
				Usage: "Write the price history of an instrument to a file",
				Flags: []cli.Flag{
					symbolFlag(true),
					daysFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   fmt.Sprintf("Output format (%s or %s)", writer.WriterCSV, writer.WriterParquet),
						Value:   string(writer.WriterCSV),
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output directory",
						Value:   "data",
					},
				},
				Action: exportAction,
			},
			{
				Name:   "instruments",
				Usage:  "List supported instruments and providers",
				Action: instrumentsAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the config file",
				Action: schemaAction,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
