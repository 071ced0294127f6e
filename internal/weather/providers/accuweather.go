package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/weather-ranker/internal/weather"
)

const accuWeatherBaseURL = "https://dataservice.accuweather.com"

// AccuWeatherProvider implements the weather.Provider interface for AccuWeather.
// AccuWeather is keyed by its own location ids, so every fetch resolves the
// coordinates to a location key first. Hourly forecasts are a paid endpoint and
// are left empty.
type AccuWeatherProvider struct {
	apiKey string
	client client
}

func NewAccuWeatherProvider(httpClient *http.Client, apiKey string, opts ...Option) *AccuWeatherProvider {
	return &AccuWeatherProvider{
		apiKey: apiKey,
		client: newClient(httpClient, buildOptions("accuweather", accuWeatherBaseURL, opts)),
	}
}

func (p *AccuWeatherProvider) Source() weather.Source {
	return weather.SourceAccuWeather
}

type accuValue struct {
	Value float64 `json:"Value"`
}

type accuUnits struct {
	Metric   accuValue `json:"Metric"`
	Imperial accuValue `json:"Imperial"`
}

type accuLocation struct {
	Key                string `json:"Key"`
	LocalizedName      string `json:"LocalizedName"`
	AdministrativeArea struct {
		ID            string `json:"ID"`
		LocalizedName string `json:"LocalizedName"`
	} `json:"AdministrativeArea"`
	Country struct {
		ID            string `json:"ID"`
		LocalizedName string `json:"LocalizedName"`
	} `json:"Country"`
	TimeZone struct {
		Name string `json:"Name"`
	} `json:"TimeZone"`
}

type accuCurrent struct {
	EpochTime           int64     `json:"EpochTime"`
	WeatherText         string    `json:"WeatherText"`
	WeatherIcon         int       `json:"WeatherIcon"`
	Temperature         accuUnits `json:"Temperature"`
	RealFeelTemperature accuUnits `json:"RealFeelTemperature"`
	RelativeHumidity    float64   `json:"RelativeHumidity"`
	Wind                struct {
		Direction struct {
			Degrees float64 `json:"Degrees"`
		} `json:"Direction"`
		Speed accuUnits `json:"Speed"`
	} `json:"Wind"`
	UVIndex    float64   `json:"UVIndex"`
	Visibility accuUnits `json:"Visibility"`
	Pressure   accuUnits `json:"Pressure"`
}

type accuDaily struct {
	DailyForecasts []struct {
		EpochDate   int64 `json:"EpochDate"`
		Temperature struct {
			Minimum accuValue `json:"Minimum"`
			Maximum accuValue `json:"Maximum"`
		} `json:"Temperature"`
		Day struct {
			Icon                     int    `json:"Icon"`
			IconPhrase               string `json:"IconPhrase"`
			LongPhrase               string `json:"LongPhrase"`
			PrecipitationProbability int    `json:"PrecipitationProbability"`
		} `json:"Day"`
	} `json:"DailyForecasts"`
}

func (p *AccuWeatherProvider) Fetch(ctx context.Context, coords weather.Coordinates) (weather.Record, error) {
	if p.apiKey == "" {
		return weather.Record{}, weather.NewProviderError(p.Source(), "config", weather.ErrMissingAPIKey)
	}

	loc, err := p.locationKey(ctx, coords)
	if err != nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "location", err)
	}

	values := url.Values{}
	values.Set("apikey", p.apiKey)
	values.Set("details", "true")

	var currents []accuCurrent
	if err := p.client.getJSON(ctx, "/currentconditions/v1/"+url.PathEscape(loc.Key), values, &currents); err != nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "current", err)
	}
	if len(currents) == 0 {
		return weather.Record{}, weather.NewProviderError(p.Source(), "current", fmt.Errorf("%w: empty conditions", errMalformed))
	}

	var days accuDaily
	if err := p.client.getJSON(ctx, "/forecasts/v1/daily/5day/"+url.PathEscape(loc.Key), values, &days); err != nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "daily", err)
	}

	tz, err := time.LoadLocation(loc.TimeZone.Name)
	if err != nil || loc.TimeZone.Name == "" {
		tz = time.UTC
	}

	c := currents[0]
	current := weather.Current{
		Temperature:   weather.Round(c.Temperature.Imperial.Value),
		FeelsLike:     weather.Round(c.RealFeelTemperature.Imperial.Value),
		Humidity:      weather.Round(c.RelativeHumidity),
		WindSpeed:     weather.Round(c.Wind.Speed.Imperial.Value),
		WindDirection: weather.Round(c.Wind.Direction.Degrees),
		Visibility:    weather.Round(c.Visibility.Imperial.Value),
		Pressure:      c.Pressure.Metric.Value,
		UVIndex:       weather.Round(c.UVIndex),
		Condition:     mapAccuWeatherIcon(c.WeatherIcon),
		Description:   c.WeatherText,
	}

	daily := make([]weather.DailyPoint, 0, len(days.DailyForecasts))
	for _, d := range days.DailyForecasts {
		date := time.Unix(d.EpochDate, 0).In(tz)
		daily = append(daily, weather.DailyPoint{
			Date:              date.UTC(),
			Label:             weather.DayLabel(date),
			Condition:         mapAccuWeatherIcon(d.Day.Icon),
			Description:       d.Day.LongPhrase,
			PrecipProbability: weather.ClampPercent(d.Day.PrecipitationProbability),
			High:              weather.Round(d.Temperature.Maximum.Value),
			Low:               weather.Round(d.Temperature.Minimum.Value),
			Icon:              strconv.Itoa(d.Day.Icon),
		})
	}

	fetched := time.Unix(c.EpochTime, 0).UTC()
	if c.EpochTime == 0 {
		fetched = time.Now().UTC()
	}

	return weather.Record{
		Source:    p.Source(),
		Location:  joinNonEmpty(loc.LocalizedName, loc.AdministrativeArea.ID, loc.Country.ID),
		Latitude:  coords.Lat,
		Longitude: coords.Lon,
		Current:   current,
		Hourly:    weather.SortHourly(nil),
		Daily:     weather.SortDaily(daily),
		FetchedAt: fetched,
	}, nil
}

func (p *AccuWeatherProvider) locationKey(ctx context.Context, coords weather.Coordinates) (accuLocation, error) {
	values := url.Values{}
	values.Set("apikey", p.apiKey)
	values.Set("q", fmt.Sprintf("%f,%f", coords.Lat, coords.Lon))

	var loc accuLocation
	if err := p.client.getJSON(ctx, "/locations/v1/cities/geoposition/search", values, &loc); err != nil {
		return accuLocation{}, err
	}
	if loc.Key == "" {
		return accuLocation{}, fmt.Errorf("%w: no location key", errMalformed)
	}
	return loc, nil
}

// mapAccuWeatherIcon maps AccuWeather icon numbers (1-44) to conditions.
func mapAccuWeatherIcon(icon int) weather.Condition {
	switch {
	case icon >= 1 && icon <= 5, icon == 33 || icon == 34:
		return weather.ConditionClear
	case icon >= 6 && icon <= 8, icon >= 35 && icon <= 38:
		return weather.ConditionCloudy
	case icon == 11:
		return weather.ConditionMist
	case icon >= 12 && icon <= 14, icon == 18, icon == 26, icon == 39 || icon == 40:
		return weather.ConditionRain
	case icon >= 15 && icon <= 17, icon == 41 || icon == 42:
		return weather.ConditionStorm
	case icon >= 19 && icon <= 25, icon == 29, icon == 43 || icon == 44:
		return weather.ConditionSnow
	default:
		return weather.ConditionUnknown
	}
}
