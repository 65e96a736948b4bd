package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/paddyops/awd/awd"
)

// WeatherClient is a thin HTTP client for the irrigation district's weather
// service. It implements WeatherProvider.
type WeatherClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewWeatherClient creates a weather client.
func NewWeatherClient(baseURL, apiKey string) *WeatherClient {
	return &WeatherClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type rainfallResponse struct {
	FieldID  string  `json:"fieldId"`
	AmountMm float64 `json:"amountMm"`
	Forecast []struct {
		Time     time.Time `json:"time"`
		AmountMm float64   `json:"amountMm"`
	} `json:"forecast"`
}

type weatherResponse struct {
	FieldID         string  `json:"fieldId"`
	TemperatureC    float64 `json:"temperatureC"`
	HumidityPercent float64 `json:"humidityPercent"`
}

func (c *WeatherClient) get(ctx context.Context, path, fieldID string, out any) error {
	u := fmt.Sprintf("%s%s?fieldId=%s", c.baseURL, path, url.QueryEscape(fieldID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build weather request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call weather service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather service returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode weather response: %w", err)
	}
	return nil
}

// CurrentRainfall returns observed rainfall plus the short-range forecast
// for a field's location.
func (c *WeatherClient) CurrentRainfall(ctx context.Context, fieldID string) (awd.RainfallData, error) {
	var out rainfallResponse
	if err := c.get(ctx, "/v1/rainfall", fieldID, &out); err != nil {
		return awd.RainfallData{}, err
	}

	data := awd.RainfallData{
		FieldID:  fieldID,
		AmountMm: out.AmountMm,
		Time:     time.Now().UTC(),
	}
	for _, f := range out.Forecast {
		data.Forecast = append(data.Forecast, awd.RainfallForecast{
			Time:     f.Time,
			AmountMm: f.AmountMm,
		})
	}
	return data, nil
}

// CurrentWeather returns the current weather snapshot for a field.
func (c *WeatherClient) CurrentWeather(ctx context.Context, fieldID string) (awd.WeatherData, error) {
	var out weatherResponse
	if err := c.get(ctx, "/v1/current", fieldID, &out); err != nil {
		return awd.WeatherData{}, err
	}
	return awd.WeatherData{
		FieldID:         fieldID,
		TemperatureC:    out.TemperatureC,
		HumidityPercent: out.HumidityPercent,
		Time:            time.Now().UTC(),
	}, nil
}
