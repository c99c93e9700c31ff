package commander

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sample is the JSON body of POST /predict.
type Sample struct {
	PH          float64 `json:"pH"`
	Temperature float64 `json:"Temperature"`
	Taste       int     `json:"Taste"`
	Odor        int     `json:"Odor"`
	Fat         int     `json:"Fat"`
	Turbidity   int     `json:"Turbidity"`
	Color       int     `json:"Color"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// APIClient talks to the prediction API.
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *APIClient) Health(ctx context.Context) error {
	var out map[string]string
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *APIClient) Predict(ctx context.Context, sample Sample) (string, error) {
	var out struct {
		PredictedQuality string `json:"predicted_quality"`
	}
	if err := c.do(ctx, http.MethodPost, "/predict", sample, &out); err != nil {
		return "", err
	}
	return out.PredictedQuality, nil
}

// Plot returns the decoded PNG of plotType for feature.
func (c *APIClient) Plot(ctx context.Context, feature, plotType string) ([]byte, error) {
	req := struct {
		Feature  string `json:"feature"`
		PlotType string `json:"plot_type"`
	}{feature, plotType}

	var out struct {
		PlotBase64 string `json:"plot_base64"`
	}
	if err := c.do(ctx, http.MethodPost, "/plot", req, &out); err != nil {
		return nil, err
	}

	png, err := base64.StdEncoding.DecodeString(out.PlotBase64)
	if err != nil {
		return nil, fmt.Errorf("decode plot: %w", err)
	}
	return png, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &apiErr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if apiErr.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
