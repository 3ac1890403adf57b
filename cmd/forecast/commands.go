package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-forecast/internal/config"
	"github.com/rxtech-lab/argo-forecast/internal/logger"
	"github.com/rxtech-lab/argo-forecast/internal/server"
	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/forecast"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/provider"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata/writer"
)

// cliLogLevel keeps log lines out of table output unless --log-level asks for them.
const cliLogLevel = "error"

// app holds what every command needs, built from the config file, environment and global flags.
type app struct {
	config config.Config
	logger *logger.Logger
	client *marketdata.Client
	out    io.Writer
	errOut io.Writer
}

func newApp(cmd *cli.Command, defaultLogLevel string) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if value := cmd.String("provider"); value != "" {
		cfg.Provider.Type = provider.ProviderType(value)
	}

	if cmd.Bool("synthetic") {
		cfg.DataMode = marketdata.DataModeSynthetic
	}

	logLevel := defaultLogLevel
	if value := cmd.String("log-level"); value != "" {
		cfg.LogLevel = value
		logLevel = value
	}

	if logLevel == "" {
		logLevel = cfg.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.NewLoggerWithLevel(logLevel)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create logger", err)
	}

	client, err := marketdata.NewClient(cfg.ClientConfig(), log)
	if err != nil {
		return nil, err
	}

	return &app{
		config: cfg,
		logger: log,
		client: client,
		out:    cmd.Root().Writer,
		errOut: cmd.Root().ErrWriter,
	}, nil
}

func (a *app) service() *forecast.Service {
	return forecast.NewService(a.client, forecast.NewLogLinearModel(a.config.LogLinearConfig()), a.logger)
}

func (a *app) days(cmd *cli.Command) int {
	if days := int(cmd.Int("days")); days > 0 {
		return days
	}

	return a.config.Forecast.Days
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	if host := cmd.String("host"); host != "" {
		a.config.Server.Host = host
	}

	if port := int(cmd.Int("port")); port > 0 {
		a.config.Server.Port = port
	}

	srv, err := server.NewServer(a.service(), a.client.Registry(), server.Options{
		DefaultDays:     a.config.Forecast.Days,
		DefaultHorizon:  a.config.Forecast.Horizon,
		ShutdownTimeout: a.config.Server.ShutdownTimeout,
	}, a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("Starting forecast server",
		zap.String("addr", a.config.Addr()),
		zap.String("provider", a.client.ProviderName()),
		zap.String("data_mode", string(a.config.DataMode)),
	)

	return srv.ListenAndServe(ctx, a.config.Addr())
}

func fetchAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd, cliLogLevel)
	if err != nil {
		return err
	}

	symbol := cmd.String("symbol")

	var req marketdata.FetchRequest
	if cmd.IsSet("start") {
		end := time.Now().UTC()
		if cmd.IsSet("end") {
			end = cmd.Timestamp("end")
		}

		req = marketdata.NewRangeRequest(symbol, cmd.Timestamp("start"), end)
	} else {
		req = marketdata.NewFetchRequest(symbol, a.days(cmd))
	}

	req = req.WithInterval(types.Interval(cmd.String("interval")))

	result, err := a.client.Fetch(ctx, req)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return renderJSON(a.out, result)
	}

	renderSeries(a.out, result)

	return nil
}

func forecastAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd, cliLogLevel)
	if err != nil {
		return err
	}

	horizon := int(cmd.Int("horizon"))
	if horizon <= 0 {
		horizon = a.config.Forecast.Horizon
	}

	rows := int(cmd.Int("rows"))
	service := a.service()

	if !cmd.Bool("all") {
		symbol := cmd.String("symbol")
		if symbol == "" {
			return errors.New(errors.ErrCodeMissingParameter, "either --symbol or --all is required")
		}

		report, err := service.Run(ctx, marketdata.NewFetchRequest(symbol, a.days(cmd)), horizon)
		if err != nil {
			return err
		}

		if cmd.Bool("json") {
			return renderJSON(a.out, report)
		}

		renderReport(a.out, report, rows)

		return nil
	}

	symbols := a.client.Registry().Symbols()
	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionSetDescription("Forecasting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(a.errOut),
		progressbar.OptionClearOnFinish(),
	)

	batch := service.RunAll(ctx, symbols, a.days(cmd), horizon, func(_, _ int, symbol string) {
		bar.Describe(symbol)
		_ = bar.Add(1)
	})
	_ = bar.Finish()

	if cmd.Bool("json") {
		reports := make([]*forecast.Report, 0, len(batch.Reports))
		for _, symbol := range batch.Order {
			if report, ok := batch.Reports[symbol]; ok {
				reports = append(reports, report)
			}
		}

		if err := renderJSON(a.out, reports); err != nil {
			return err
		}
	} else {
		for _, symbol := range batch.Order {
			report, ok := batch.Reports[symbol]
			if !ok {
				continue
			}

			renderReport(a.out, report, rows)
			fmt.Fprintln(a.out)
		}
	}

	for _, symbol := range batch.Order {
		if failure, ok := batch.Failures[symbol]; ok {
			fmt.Fprintln(a.errOut, ErrorStyle.Render(symbol+":"), failure)
		}
	}

	if len(batch.Reports) == 0 && len(symbols) > 0 {
		return errors.Newf(errors.ErrCodeForecastFailed, "all %d forecasts failed", len(symbols))
	}

	return nil
}

func exportAction(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd, cliLogLevel)
	if err != nil {
		return err
	}

	path, result, err := a.client.Export(ctx, marketdata.ExportParams{
		Request:   marketdata.NewFetchRequest(cmd.String("symbol"), a.days(cmd)),
		Format:    writer.WriterType(cmd.String("format")),
		OutputDir: cmd.String("out"),
	})
	if err != nil {
		return err
	}

	if result.Source == types.SourceSynthetic {
		fmt.Fprintln(a.out, syntheticBanner(result.FallbackReason))
	}

	fmt.Fprintf(a.out, "Wrote %d points to %s\n", result.Series.Len(), path)

	return nil
}

func instrumentsAction(_ context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer

	renderInstruments(out, marketdata.DefaultInstrumentRegistry().All())
	fmt.Fprintln(out)
	renderProviders(out)

	return nil
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, schema)

	return nil
}
