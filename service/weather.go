// Package service holds thin clients for the external systems the bot
// talks to: OpenWeatherMap, Tavily, Overseerr, the RSI Spectrum forum,
// reddit, Google Calendar, and the yt-dlp binary.
package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/linanwx/milo/logger"
)

const owmBaseURL = "https://api.openweathermap.org"

// HourlyForecast is one three-hour slot of today's forecast.
type HourlyForecast struct {
	Time        string // "9 AM"
	TempF       float64
	Description string
	Icon        string
}

// DailyWeather aggregates all of today's forecast slots.
type DailyWeather struct {
	City         string
	HighF        float64
	LowF         float64
	Description  string
	Icon         string
	PrecipChance float64 // 0-100
	Hourly       []HourlyForecast
}

// Weather fetches forecasts from OpenWeatherMap for a fixed US zip
// code. The zip is geocoded once and the coordinates cached for the
// life of the process.
type Weather struct {
	apiKey  string
	zip     string
	baseURL string
	rest    *resty.Client

	mu       sync.Mutex
	lat, lon float64
	geocoded bool
}

// NewWeather returns a client for the given OpenWeatherMap key and zip.
func NewWeather(apiKey, zip string) *Weather {
	return &Weather{
		apiKey:  apiKey,
		zip:     zip,
		baseURL: owmBaseURL,
		rest:    resty.New().SetTimeout(15 * time.Second),
	}
}

func (w *Weather) geocode(ctx context.Context) (float64, float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.geocoded {
		return w.lat, w.lon, nil
	}

	var out struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	resp, err := w.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"zip":   w.zip + ",US",
			"appid": w.apiKey,
		}).
		SetResult(&out).
		Get(w.baseURL + "/geo/1.0/zip")
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s: %w", w.zip, err)
	}
	if resp.IsError() {
		return 0, 0, fmt.Errorf("geocode %s: status %s", w.zip, resp.Status())
	}

	w.lat, w.lon = out.Lat, out.Lon
	w.geocoded = true
	logger.Debug("geocoded zip", "zip", w.zip, "lat", w.lat, "lon", w.lon)
	return w.lat, w.lon, nil
}

type forecastResponse struct {
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Pop     float64 `json:"pop"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	} `json:"list"`
}

// Today returns the aggregated forecast for the current UTC date:
// high and low across the day's slots, the first slot's description
// and icon, and the maximum precipitation chance.
func (w *Weather) Today(ctx context.Context) (*DailyWeather, error) {
	lat, lon, err := w.geocode(ctx)
	if err != nil {
		return nil, err
	}

	var out forecastResponse
	resp, err := w.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(lat, 'f', -1, 64),
			"lon":   strconv.FormatFloat(lon, 'f', -1, 64),
			"appid": w.apiKey,
			"units": "imperial",
		}).
		SetResult(&out).
		Get(w.baseURL + "/data/2.5/forecast")
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("forecast: status %s", resp.Status())
	}

	today := time.Now().UTC().Format("2006-01-02")
	daily := &DailyWeather{City: out.City.Name}
	var precip float64
	for _, entry := range out.List {
		if !strings.HasPrefix(entry.DtTxt, today) || len(entry.Weather) == 0 {
			continue
		}
		slot, err := time.Parse("2006-01-02 15:04:05", entry.DtTxt)
		if err != nil {
			continue
		}

		temp := entry.Main.Temp
		if len(daily.Hourly) == 0 {
			daily.HighF, daily.LowF = temp, temp
			daily.Description = entry.Weather[0].Description
			daily.Icon = entry.Weather[0].Icon
		} else {
			daily.HighF = math.Max(daily.HighF, temp)
			daily.LowF = math.Min(daily.LowF, temp)
		}
		precip = math.Max(precip, entry.Pop*100)

		daily.Hourly = append(daily.Hourly, HourlyForecast{
			Time:        slot.Format("3 PM"),
			TempF:       round1(temp),
			Description: entry.Weather[0].Description,
			Icon:        entry.Weather[0].Icon,
		})
	}
	if len(daily.Hourly) == 0 {
		return nil, fmt.Errorf("no forecast entries for %s", today)
	}

	daily.HighF = round1(daily.HighF)
	daily.LowF = round1(daily.LowF)
	daily.PrecipChance = math.Round(precip)
	return daily, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
