// Package classify calls the external pollution-source model and feeds
// results back into the live reading store. Enrichment is best-effort:
// one call per qualifying reading, no retries, and never on the critical
// ingestion path.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atmostrack/atmostrack/internal/httputil"
	"github.com/atmostrack/atmostrack/internal/models"
)

// Request is the feature subset the model was trained on. Field names
// match the model server's schema exactly.
type Request struct {
	VOCAvg        float64 `json:"VOC_avg"`
	VOCStd        float64 `json:"VOC_std"`
	CO2Avg        float64 `json:"CO2_avg"`
	CO2Std        float64 `json:"CO2_std"`
	VibrationAmp  float64 `json:"Vibration_amp"`
	VibrationFreq float64 `json:"Vibration_freq"`
	Hour          int     `json:"Hour"`
}

// RequestFromFeatures builds the classifier request. Callers must only
// invoke it for a complete feature vector.
func RequestFromFeatures(fv models.FeatureVector) Request {
	return Request{
		VOCAvg:        fv.VocAvg.Float64,
		VOCStd:        fv.VocStd.Float64,
		CO2Avg:        fv.CO2Avg.Float64,
		CO2Std:        fv.CO2Std.Float64,
		VibrationAmp:  fv.VibrationAmplitude.Float64,
		VibrationFreq: float64(fv.VibrationEventCount),
		Hour:          fv.HourOfDay,
	}
}

type response struct {
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	ModelAccuracy float64 `json:"modelAccuracy"`
}

// Client talks to the model server's /classify endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  httputil.NewClient(),
	}
}

// Classify issues one call. The server reports confidence as a
// percentage; it is normalized to [0,1] here.
func (c *Client) Classify(ctx context.Context, req Request) (*models.ClassificationResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classify: status %d: %s", resp.StatusCode, string(b))
	}

	var data response
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	conf := data.Confidence / 100
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return &models.ClassificationResult{
		Label:        data.Label,
		Confidence:   conf,
		ClassifiedAt: time.Now(),
	}, nil
}
