package mocks

//go:generate mockgen -destination=./mock_provider.go -package=mocks github.com/rxtech-lab/argo-forecast/pkg/marketdata/provider Provider
//go:generate mockgen -destination=./mock_forecaster.go -package=mocks github.com/rxtech-lab/argo-forecast/pkg/forecast Forecaster
