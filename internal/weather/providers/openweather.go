package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/weather-ranker/internal/weather"
)

const openWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
// It queries in the API's standard units (Kelvin, m/s, metres).
type OpenWeatherProvider struct {
	apiKey string
	client client
}

func NewOpenWeatherProvider(httpClient *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		apiKey: apiKey,
		client: newClient(httpClient, buildOptions("openweather", openWeatherBaseURL, opts)),
	}
}

func (p *OpenWeatherProvider) Source() weather.Source {
	return weather.SourceOpenWeather
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmCurrent struct {
	Dt      int64          `json:"dt"`
	Name    string         `json:"name"`
	Weather []owmCondition `json:"weather"`
	Main    struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Visibility *float64 `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Sys struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type owmForecast struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp    float64 `json:"temp"`
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Weather []owmCondition `json:"weather"`
		Pop     float64        `json:"pop"`
	} `json:"list"`
	City struct {
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, coords weather.Coordinates) (weather.Record, error) {
	if p.apiKey == "" {
		return weather.Record{}, weather.NewProviderError(p.Source(), "config", weather.ErrMissingAPIKey)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("lat", coordParam(coords.Lat))
	values.Set("lon", coordParam(coords.Lon))

	var cur owmCurrent
	if err := p.client.getJSON(ctx, "/data/2.5/weather", values, &cur); err != nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "current", err)
	}
	if cur.Main.Temp <= 0 {
		// Kelvin cannot be zero or negative; the payload is not what we asked for.
		return weather.Record{}, weather.NewProviderError(p.Source(), "current", fmt.Errorf("%w: missing temperature", errMalformed))
	}

	var fc owmForecast
	if err := p.client.getJSON(ctx, "/data/2.5/forecast", values, &fc); err != nil {
		return weather.Record{}, weather.NewProviderError(p.Source(), "forecast", err)
	}

	first := firstOWMCondition(cur.Weather)
	current := weather.Current{
		Temperature:   weather.Round(weather.KelvinToFahrenheit(cur.Main.Temp)),
		FeelsLike:     weather.Round(weather.KelvinToFahrenheit(cur.Main.FeelsLike)),
		Humidity:      weather.Round(cur.Main.Humidity),
		WindSpeed:     weather.Round(weather.MetersPerSecondToMPH(cur.Wind.Speed)),
		WindDirection: weather.Round(cur.Wind.Deg),
		Pressure:      cur.Main.Pressure,
		Condition:     mapOpenWeatherCondition(first.Main),
		Description:   first.Description,
	}
	if cur.Visibility != nil {
		current.Visibility = weather.Round(weather.MetersToMiles(*cur.Visibility))
	}

	tz := time.FixedZone("", fc.City.Timezone)
	hourly, daily := openWeatherForecast(fc, tz)

	name, country := cur.Name, cur.Sys.Country
	if name == "" {
		name, country = fc.City.Name, fc.City.Country
	}

	fetched := time.Unix(cur.Dt, 0).UTC()
	if cur.Dt == 0 {
		fetched = time.Now().UTC()
	}

	return weather.Record{
		Source:    p.Source(),
		Location:  joinNonEmpty(name, country),
		Latitude:  coords.Lat,
		Longitude: coords.Lon,
		Current:   current,
		Hourly:    hourly,
		Daily:     daily,
		FetchedAt: fetched,
	}, nil
}

// openWeatherForecast splits the 3-hour forecast into an hourly strip (next 24h)
// and per-day summaries in the city's local time.
func openWeatherForecast(fc owmForecast, tz *time.Location) ([]weather.HourlyPoint, []weather.DailyPoint) {
	hourly := make([]weather.HourlyPoint, 0, 8)
	for i, item := range fc.List {
		if i >= 8 {
			break
		}
		c := firstOWMCondition(item.Weather)
		ts := time.Unix(item.Dt, 0).In(tz)
		hourly = append(hourly, weather.HourlyPoint{
			Time:              ts.UTC(),
			Label:             weather.HourLabel(ts),
			Condition:         mapOpenWeatherCondition(c.Main),
			PrecipProbability: weather.Percent(item.Pop),
			Temperature:       weather.Round(weather.KelvinToFahrenheit(item.Main.Temp)),
			Icon:              c.Icon,
		})
	}

	type dayAcc struct {
		date    time.Time
		high    float64
		low     float64
		pop     float64
		cond    owmCondition
		noonGap float64
	}
	var (
		order []string
		days  = make(map[string]*dayAcc)
	)
	for _, item := range fc.List {
		ts := time.Unix(item.Dt, 0).In(tz)
		key := ts.Format("2006-01-02")
		d, ok := days[key]
		if !ok {
			d = &dayAcc{
				date:    time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, tz),
				high:    math.Inf(-1),
				low:     math.Inf(1),
				noonGap: math.Inf(1),
			}
			days[key] = d
			order = append(order, key)
		}
		d.high = math.Max(d.high, item.Main.TempMax)
		d.low = math.Min(d.low, item.Main.TempMin)
		d.pop = math.Max(d.pop, item.Pop)
		// Midday entry describes the day best.
		if gap := math.Abs(float64(ts.Hour()) - 12); gap < d.noonGap {
			d.noonGap = gap
			d.cond = firstOWMCondition(item.Weather)
		}
	}

	daily := make([]weather.DailyPoint, 0, len(order))
	for _, key := range order {
		d := days[key]
		daily = append(daily, weather.DailyPoint{
			Date:              d.date.UTC(),
			Label:             weather.DayLabel(d.date),
			Condition:         mapOpenWeatherCondition(d.cond.Main),
			Description:       d.cond.Description,
			PrecipProbability: weather.Percent(d.pop),
			High:              weather.Round(weather.KelvinToFahrenheit(d.high)),
			Low:               weather.Round(weather.KelvinToFahrenheit(d.low)),
			Icon:              d.cond.Icon,
		})
	}

	return weather.SortHourly(hourly), weather.SortDaily(daily)
}

func firstOWMCondition(items []owmCondition) owmCondition {
	if len(items) == 0 {
		return owmCondition{}
	}
	return items[0]
}

func mapOpenWeatherCondition(main string) weather.Condition {
	switch main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm", "Squall", "Tornado":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke", "Dust", "Sand", "Ash":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
