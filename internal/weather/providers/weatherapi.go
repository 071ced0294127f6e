package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/i474232898/weather-ranker/internal/common"
	"github.com/i474232898/weather-ranker/internal/weather"
)

const weatherAPIBaseURL = "https://api.weatherapi.com/v1"

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	apiKey string
	days   int
	client client
}

func NewWeatherAPIProvider(httpClient *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		apiKey: apiKey,
		days:   3,
		client: newClient(httpClient, buildOptions("weatherapi", weatherAPIBaseURL, opts)),
	}
}

func (p *WeatherAPIProvider) Source() weather.Source {
	return weather.SourceWeatherAPI
}

type wapiCondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
}

type wapiForecast struct {
	Location struct {
		Name           string `json:"name"`
		Region         string `json:"region"`
		Country        string `json:"country"`
		TzID           string `json:"tz_id"`
		LocaltimeEpoch int64  `json:"localtime_epoch"`
	} `json:"location"`
	Current *struct {
		LastUpdatedEpoch int64         `json:"last_updated_epoch"`
		TempF            float64       `json:"temp_f"`
		FeelsLikeF       float64       `json:"feelslike_f"`
		Humidity         float64       `json:"humidity"`
		WindMph          float64       `json:"wind_mph"`
		WindDegree       float64       `json:"wind_degree"`
		VisMiles         float64       `json:"vis_miles"`
		PressureMb       float64       `json:"pressure_mb"`
		UV               float64       `json:"uv"`
		Condition        wapiCondition `json:"condition"`
	} `json:"current"`
	Forecast struct {
		Forecastday []struct {
			Date string `json:"date"`
			Day  struct {
				MaxTempF          float64       `json:"maxtemp_f"`
				MinTempF          float64       `json:"mintemp_f"`
				DailyChanceOfRain int           `json:"daily_chance_of_rain"`
				DailyChanceOfSnow int           `json:"daily_chance_of_snow"`
				Condition         wapiCondition `json:"condition"`
			} `json:"day"`
			Hour []struct {
				TimeEpoch    int64         `json:"time_epoch"`
				TempF        float64       `json:"temp_f"`
				ChanceOfRain int           `json:"chance_of_rain"`
				ChanceOfSnow int           `json:"chance_of_snow"`
				Condition    wapiCondition `json:"condition"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, coords weather.Coordinates) (weather.Record, error) {
	if p.apiKey == "" {
		return weather.Record{}, weather.NewProviderError(p.Source(), "config", weather.ErrMissingAPIKey)
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))
	values.Set("days", fmt.Sprintf("%d", p.days))
	values.Set("aqi", "no")
	values.Set("alerts", "no")

	var payload wapiForecast
	if err := p.client.getJSON(ctx, "/forecast.json", values, &payload); err != nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "forecast", err)
	}
	if payload.Current == nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "forecast", fmt.Errorf("%w: missing current block", errMalformed))
	}

	tz, err := time.LoadLocation(payload.Location.TzID)
	if err != nil || payload.Location.TzID == "" {
		tz = time.UTC
	}

	c := payload.Current
	current := weather.Current{
		Temperature:   weather.Round(c.TempF),
		FeelsLike:     weather.Round(c.FeelsLikeF),
		Humidity:      weather.Round(c.Humidity),
		WindSpeed:     weather.Round(c.WindMph),
		WindDirection: weather.Round(c.WindDegree),
		Visibility:    weather.Round(c.VisMiles),
		Pressure:      c.PressureMb,
		UVIndex:       weather.Round(c.UV),
		Condition:     mapWeatherAPICondition(c.Condition.Text),
		Description:   c.Condition.Text,
	}

	now := time.Unix(payload.Location.LocaltimeEpoch, 0)
	if payload.Location.LocaltimeEpoch == 0 {
		now = time.Now()
	}
	// Start of the current local hour; zones with half-hour offsets do not align with UTC hours.
	local := now.In(tz)
	hourStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, tz)

	hourly := make([]weather.HourlyPoint, 0, weather.MaxHourlyPoints)
	daily := make([]weather.DailyPoint, 0, len(payload.Forecast.Forecastday))
	for _, fd := range payload.Forecast.Forecastday {
		for _, h := range fd.Hour {
			ts := time.Unix(h.TimeEpoch, 0)
			if ts.Before(hourStart) || len(hourly) >= weather.MaxHourlyPoints {
				continue
			}
			hourly = append(hourly, weather.HourlyPoint{
				Time:              ts.UTC(),
				Label:             weather.HourLabel(ts.In(tz)),
				Condition:         mapWeatherAPICondition(h.Condition.Text),
				PrecipProbability: weather.ClampPercent(max(h.ChanceOfRain, h.ChanceOfSnow)),
				Temperature:       weather.Round(h.TempF),
				Icon:              iconURL(h.Condition.Icon),
			})
		}

		date, err := time.ParseInLocation("2006-01-02", fd.Date, tz)
		if err != nil {
			return weather.Record{}, weather.NewProviderError(p.Source(), "forecast", fmt.Errorf("%w: bad date %q", errMalformed, fd.Date))
		}
		daily = append(daily, weather.DailyPoint{
			Date:              date.UTC(),
			Label:             weather.DayLabel(date),
			Condition:         mapWeatherAPICondition(fd.Day.Condition.Text),
			Description:       fd.Day.Condition.Text,
			PrecipProbability: weather.ClampPercent(max(fd.Day.DailyChanceOfRain, fd.Day.DailyChanceOfSnow)),
			High:              weather.Round(fd.Day.MaxTempF),
			Low:               weather.Round(fd.Day.MinTempF),
			Icon:              iconURL(fd.Day.Condition.Icon),
		})
	}

	fetched := time.Unix(c.LastUpdatedEpoch, 0).UTC()
	if c.LastUpdatedEpoch == 0 {
		fetched = time.Now().UTC()
	}

	loc := payload.Location
	return weather.Record{
		Source:    p.Source(),
		Location:  joinNonEmpty(loc.Name, loc.Region, loc.Country),
		Latitude:  coords.Lat,
		Longitude: coords.Lon,
		Current:   current,
		Hourly:    weather.SortHourly(hourly),
		Daily:     weather.SortDaily(daily),
		FetchedAt: fetched,
	}, nil
}

// iconURL turns WeatherAPI's protocol-relative icon path into an absolute URL.
func iconURL(icon string) string {
	if strings.HasPrefix(icon, "//") {
		return "https:" + icon
	}
	return icon
}

func mapWeatherAPICondition(text string) weather.Condition {
	t := strings.ToLower(text)
	switch {
	case t == "":
		return weather.ConditionUnknown
	case common.HasAny(t, "thunder", "storm"):
		return weather.ConditionStorm
	case common.HasAny(t, "snow", "sleet", "blizzard", "ice pellets"):
		return weather.ConditionSnow
	case common.HasAny(t, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.HasAny(t, "mist", "fog"):
		return weather.ConditionMist
	case common.HasAny(t, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.HasAny(t, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
