// Package insight produces a short natural-language summary of current
// air quality using OpenAI. It is strictly optional: without an API key
// the service is disabled and the rest of the system is unaffected.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/atmostrack/atmostrack/internal/convert"
	"github.com/atmostrack/atmostrack/internal/live"
)

const (
	refreshInterval = 10 * time.Minute
	cacheTTL        = 15 * time.Minute
	callTimeout     = 30 * time.Second
)

// Service generates and caches the condition summary.
type Service struct {
	client openai.Client
	model  string
	live   *live.Store

	mu          sync.Mutex
	cached      string
	generatedAt time.Time
}

// NewService reads OPENAI_API_KEY for authentication and fails when it is
// unset so the caller can disable the feature cleanly.
func NewService(liveStore *live.Store) (*Service, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &Service{
		client: client,
		model:  openai.ChatModelGPT4oMini,
		live:   liveStore,
	}, nil
}

// Summary returns the cached summary, generating a fresh one when stale.
func (s *Service) Summary(ctx context.Context) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && time.Since(s.generatedAt) < cacheTTL {
		return s.cached, s.generatedAt, nil
	}

	summary, err := s.generate(ctx)
	if err != nil {
		if s.cached != "" {
			// Serve the stale one rather than nothing.
			return s.cached, s.generatedAt, nil
		}
		return "", time.Time{}, err
	}

	s.cached = summary
	s.generatedAt = time.Now()
	return s.cached, s.generatedAt, nil
}

// Run refreshes the cache periodically so viewers rarely pay the
// generation latency.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, callTimeout)
			if _, _, err := s.Summary(callCtx); err != nil {
				log.Printf("insight: refresh: %v", err)
			}
			cancel()
		}
	}
}

func (s *Service) generate(ctx context.Context) (string, error) {
	prompt := s.buildPrompt()
	if prompt == "" {
		return "", errors.New("no readings yet")
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate insight: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion returned")
	}

	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("empty completion returned")
	}

	log.Printf("insight: generated summary (%d chars)", len(summary))
	return summary, nil
}

func (s *Service) buildPrompt() string {
	var b strings.Builder
	devices := s.live.Devices()
	if len(devices) == 0 {
		return ""
	}

	b.WriteString("Summarize current air quality for a resident in two sentences. Be concrete, no preamble.\n")
	for _, id := range devices {
		tuple, ok := s.live.Latest(id)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Device %s:", id)
		if tuple.Reading.MQ135Raw.Valid {
			fmt.Fprintf(&b, " AQI %d.", convert.RawToAQI(tuple.Reading.MQ135Raw.Float64))
		}
		if tuple.Reading.CO2Ppm.Valid {
			fmt.Fprintf(&b, " CO2 %.0f ppm.", tuple.Reading.CO2Ppm.Float64)
		}
		if tuple.Reading.Temperature.Valid {
			fmt.Fprintf(&b, " %.1f C.", tuple.Reading.Temperature.Float64)
		}
		if tuple.Reading.Humidity.Valid {
			fmt.Fprintf(&b, " %.0f%% humidity.", tuple.Reading.Humidity.Float64)
		}
		if tuple.Classification != nil {
			fmt.Fprintf(&b, " Likely source: %s (%.0f%% confidence).", tuple.Classification.Label, tuple.Classification.Confidence*100)
		}
		b.WriteString("\n")
	}
	return b.String()
}
