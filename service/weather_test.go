package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func forecastEntry(dtTxt string, temp, pop float64, desc, icon string) map[string]any {
	return map[string]any{
		"dt_txt":  dtTxt,
		"main":    map[string]any{"temp": temp},
		"pop":     pop,
		"weather": []map[string]any{{"description": desc, "icon": icon}},
	}
}

func weatherTestServer(t *testing.T, geoHits *int32) *httptest.Server {
	t.Helper()
	today := time.Now().UTC().Format("2006-01-02")
	tomorrow := time.Now().UTC().Add(24 * time.Hour).Format("2006-01-02")

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/1.0/zip":
			atomic.AddInt32(geoHits, 1)
			if got := r.URL.Query().Get("zip"); got != "02134,US" {
				t.Errorf("zip param = %q, want 02134,US", got)
			}
			if r.URL.Query().Get("appid") == "" {
				t.Error("missing appid param")
			}
			fmt.Fprint(w, `{"lat": 42.35, "lon": -71.13}`)
		case "/data/2.5/forecast":
			if got := r.URL.Query().Get("units"); got != "imperial" {
				t.Errorf("units param = %q, want imperial", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"city": map[string]any{"name": "Boston"},
				"list": []map[string]any{
					forecastEntry(today+" 09:00:00", 48.2, 0.1, "light rain", "10d"),
					forecastEntry(today+" 12:00:00", 55.6, 0.7, "moderate rain", "10d"),
					forecastEntry(today+" 15:00:00", 52.9, 0.4, "overcast clouds", "04d"),
					forecastEntry(tomorrow+" 09:00:00", 80.0, 0.0, "clear sky", "01d"),
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestWeatherTodayAggregates(t *testing.T) {
	var geoHits int32
	srv := weatherTestServer(t, &geoHits)
	defer srv.Close()

	w := NewWeather("key", "02134")
	w.baseURL = srv.URL

	daily, err := w.Today(context.Background())
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if daily.City != "Boston" {
		t.Errorf("City = %q, want Boston", daily.City)
	}
	if daily.HighF != 55.6 || daily.LowF != 48.2 {
		t.Errorf("High/Low = %v/%v, want 55.6/48.2", daily.HighF, daily.LowF)
	}
	if daily.Description != "light rain" || daily.Icon != "10d" {
		t.Errorf("Description/Icon = %q/%q, want the first entry's", daily.Description, daily.Icon)
	}
	if daily.PrecipChance != 70 {
		t.Errorf("PrecipChance = %v, want 70", daily.PrecipChance)
	}
	if len(daily.Hourly) != 3 {
		t.Fatalf("len(Hourly) = %d, want 3 (tomorrow excluded)", len(daily.Hourly))
	}
	if daily.Hourly[0].Time != "9 AM" {
		t.Errorf("Hourly[0].Time = %q, want 9 AM", daily.Hourly[0].Time)
	}
	if daily.Hourly[1].Time != "12 PM" {
		t.Errorf("Hourly[1].Time = %q, want 12 PM", daily.Hourly[1].Time)
	}
	if daily.Hourly[2].TempF != 52.9 {
		t.Errorf("Hourly[2].TempF = %v, want 52.9", daily.Hourly[2].TempF)
	}
}

func TestWeatherGeocodeCachedAcrossCalls(t *testing.T) {
	var geoHits int32
	srv := weatherTestServer(t, &geoHits)
	defer srv.Close()

	w := NewWeather("key", "02134")
	w.baseURL = srv.URL

	for i := 0; i < 3; i++ {
		if _, err := w.Today(context.Background()); err != nil {
			t.Fatalf("Today #%d: %v", i+1, err)
		}
	}
	if n := atomic.LoadInt32(&geoHits); n != 1 {
		t.Errorf("geocode endpoint hit %d times, want 1", n)
	}
}

func TestWeatherErrorWhenNoTodayEntries(t *testing.T) {
	tomorrow := time.Now().UTC().Add(24 * time.Hour).Format("2006-01-02")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/geo/1.0/zip" {
			fmt.Fprint(w, `{"lat": 1, "lon": 2}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"city": map[string]any{"name": "Nowhere"},
			"list": []map[string]any{
				forecastEntry(tomorrow+" 09:00:00", 60, 0, "clear sky", "01d"),
			},
		})
	}))
	defer srv.Close()

	w := NewWeather("key", "02134")
	w.baseURL = srv.URL
	if _, err := w.Today(context.Background()); err == nil {
		t.Fatal("expected error when today has no forecast entries")
	}
}

func TestWeatherGeocodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"cod": 401, "message": "Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := NewWeather("bad", "02134")
	w.baseURL = srv.URL
	if _, err := w.Today(context.Background()); err == nil {
		t.Fatal("expected error on geocode failure")
	}
}
