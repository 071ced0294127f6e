package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-ranker/internal/metrics"
	"github.com/i474232898/weather-ranker/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/locations/search", func(c *fiber.Ctx) error {
		req := searchQuery{Q: strings.TrimSpace(c.Query("q"))}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res := service.Search(c.UserContext(), req.Q)
		return c.JSON(res)
	})

	v1.Get("/weather", func(c *fiber.Ctx) error {
		var req weatherQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := service.Weather(c.UserContext(), req.toQuery())
		if err != nil {
			return weatherError(err)
		}

		return c.JSON(fiber.Map{
			"all":        res.All,
			"best":       res.Best,
			"aggregated": res.Aggregated,
			"failures":   failureViews(res.Failures),
		})
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		coords := weather.Coordinates{Lat: req.Lat, Lon: req.Lon}
		records, err := service.History(c.UserContext(), coords, req.From, req.To)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return weatherError(err)
		}

		return c.JSON(fiber.Map{
			"coordinates": coords,
			"from":        req.From,
			"to":          req.To,
			"records":     records,
		})
	})
}

// RegisterMetrics instruments every later-registered route and exposes /metrics.
func RegisterMetrics(app *fiber.App, collector *metrics.Collector, gatherer prometheus.Gatherer) {
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		collector.RecordAPIRequest(c.Route().Path, c.Method(), strconv.Itoa(status), time.Since(start))
		return err
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// weatherError maps service errors to HTTP errors.
func weatherError(err error) error {
	switch {
	case errors.Is(err, weather.ErrAllSourcesFailed):
		return fiber.NewError(fiber.StatusServiceUnavailable, "no weather data available from any source")
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrInvalidQuery):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
}

type failureView struct {
	Source weather.Source `json:"source"`
	Error  string         `json:"error"`
}

func failureViews(failures []*weather.ProviderError) []failureView {
	out := make([]failureView, 0, len(failures))
	for _, f := range failures {
		out = append(out, failureView{Source: f.Source, Error: f.Err.Error()})
	}
	return out
}

// searchQuery holds query parameters for the location search endpoint.
type searchQuery struct {
	Q string `validate:"required,max=200"`
}

// weatherQuery holds either coordinates or a free-text location.
type weatherQuery struct {
	Lat      *float64 `validate:"omitempty,latitude"`
	Lon      *float64 `validate:"omitempty,longitude"`
	Location string   `validate:"max=200"`
}

func (w *weatherQuery) bind(c *fiber.Ctx) error {
	lat, err := parseOptionalFloat(c.Query("lat"), "lat")
	if err != nil {
		return err
	}
	lon, err := parseOptionalFloat(c.Query("lon"), "lon")
	if err != nil {
		return err
	}
	w.Lat, w.Lon = lat, lon
	w.Location = strings.TrimSpace(c.Query("location"))

	if (w.Lat == nil) != (w.Lon == nil) {
		return errors.New("lat and lon must be provided together")
	}
	if w.Lat == nil && w.Location == "" {
		return errors.New("either lat/lon or location query parameters are required")
	}

	return validate.Struct(w)
}

func (w weatherQuery) toQuery() weather.Query {
	return weather.Query{Lat: w.Lat, Lon: w.Lon, Location: w.Location}
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Lat  float64   `validate:"latitude"`
	Lon  float64   `validate:"longitude"`
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	lat, err := parseOptionalFloat(c.Query("lat"), "lat")
	if err != nil {
		return err
	}
	lon, err := parseOptionalFloat(c.Query("lon"), "lon")
	if err != nil {
		return err
	}
	if lat == nil || lon == nil {
		return errors.New("lat and lon query parameters are required")
	}
	h.Lat, h.Lon = *lat, *lon

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

func parseOptionalFloat(s, name string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.New("invalid " + name + ": must be a number")
	}
	return &v, nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
