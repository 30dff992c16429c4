package skim

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"landsim/internal/logging"
	"landsim/pkg/domain"
)

var _ domain.YearlyRefresher = (*HTTPProvider)(nil)

// Response is the payload served by the transport simulator for one year.
type Response struct {
	Year          int     `json:"year"`
	TravelTimes   []Entry `json:"travel_times"`
	Accessibility []Score `json:"accessibility"`
}

// HTTPProvider answers lookups from a Matrix that RefreshForYear reloads
// from GET {baseURL}/skims/{year}.
type HTTPProvider struct {
	*Matrix
	client *resty.Client
	logger logging.Logger
}

// NewHTTPProvider builds a provider; the matrix answers defaultSeconds until
// the first refresh.
func NewHTTPProvider(baseURL string, timeout time.Duration, defaultSeconds float64, logger logging.Logger) *HTTPProvider {
	if logger == nil {
		logger = logging.Nop()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	return &HTTPProvider{Matrix: NewMatrix(defaultSeconds), client: client, logger: logger}
}

// RefreshForYear fetches the skim for year and replaces the matrix. On
// failure the previous matrix stays in place.
func (p *HTTPProvider) RefreshForYear(ctx context.Context, year int) error {
	var out Response
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("year", strconv.Itoa(year)).
		SetResult(&out).
		Get("/skims/{year}")
	if err != nil {
		return fmt.Errorf("fetch skim %d: %w", year, err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch skim %d: status %d", year, resp.StatusCode())
	}
	if out.Year != 0 && out.Year != year {
		return fmt.Errorf("fetch skim %d: server answered year %d", year, out.Year)
	}
	p.Replace(out.TravelTimes, out.Accessibility)
	p.logger.Info("skim refreshed", "year", year, "pairs", len(out.TravelTimes), "zones_scored", len(out.Accessibility))
	return nil
}
