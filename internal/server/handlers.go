package server

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-forecast/internal/types"
	"github.com/rxtech-lab/argo-forecast/internal/version"
	"github.com/rxtech-lab/argo-forecast/pkg/errors"
	"github.com/rxtech-lab/argo-forecast/pkg/forecast"
	"github.com/rxtech-lab/argo-forecast/pkg/marketdata"
)

// tableRows is the number of forecast rows shown under the chart.
const tableRows = 5

var templateFuncs = template.FuncMap{
	"price": func(value float64) string {
		return formatFixed(value, pricePlaces(value))
	},
	"percent": func(value float64) string {
		return formatFixed(value, 2) + "%"
	},
}

type indexPage struct {
	Instruments []marketdata.Instrument
	Days        int
	Horizon     int
}

type forecastPage struct {
	Report *forecast.Report
	Rows   []forecastPoint
	Chart  forecastResponse
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", indexPage{
		Instruments: s.registry.All(),
		Days:        s.options.DefaultDays,
		Horizon:     s.options.DefaultHorizon,
	})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	instruments := s.registry.All()

	data := make([]instrumentResponse, len(instruments))
	for i, instrument := range instruments {
		data[i] = instrumentResponse{
			Symbol: instrument.Symbol,
			Name:   instrument.Name,
			Class:  instrument.Class,
		}
	}

	s.writeData(w, r, data)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, r, version.Parse(version.GetVersion()))
}

func (s *Server) handleForecastAPI(w http.ResponseWriter, r *http.Request) {
	report, err := s.runForecast(r)
	if err != nil {
		s.writeError(w, r, err)

		return
	}

	s.writeData(w, r, newForecastResponse(report))
}

func (s *Server) handleForecastPage(w http.ResponseWriter, r *http.Request) {
	report, err := s.runForecast(r)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.requestLogger(r).Error("Forecast page failed", zap.Error(err))
		}

		http.Error(w, errorMessage(err), status)

		return
	}

	chart := newForecastResponse(report)
	rows := chart.Forecast
	if len(rows) > tableRows {
		rows = rows[len(rows)-tableRows:]
	}

	s.render(w, r, http.StatusOK, "forecast.html", forecastPage{
		Report: report,
		Rows:   rows,
		Chart:  chart,
	})
}

func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusNotFound, envelope{
		Status: statusError,
		Data:   nil,
		Error:  &errorBody{Code: errors.ErrCodeDataNotFound, Message: "no such endpoint: " + r.URL.Path},
	})
}

// runForecast resolves the symbol, days and horizon of a forecast request and runs it.
func (s *Server) runForecast(r *http.Request) (*forecast.Report, error) {
	query := r.URL.Query()

	days, err := intParam(query.Get("days"), "days", s.options.DefaultDays, marketdata.MaxDays)
	if err != nil {
		return nil, err
	}

	horizon, err := intParam(query.Get("horizon"), "horizon", s.options.DefaultHorizon, MaxHorizon)
	if err != nil {
		return nil, err
	}

	req := marketdata.NewFetchRequest(mux.Vars(r)["symbol"], days)

	if interval := query.Get("interval"); interval != "" {
		req = req.WithInterval(types.Interval(interval))
	}

	return s.service.Run(r.Context(), req, horizon)
}

func intParam(raw, name string, fallback, upper int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "%s must be an integer, got %q", name, raw)
	}

	if value < 1 || value > upper {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "%s must be between 1 and %d, got %d", name, upper, value)
	}

	return value, nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.requestLogger(r).Error("Failed to render page", zap.String("template", name), zap.Error(err))
		http.Error(w, "failed to render page", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
