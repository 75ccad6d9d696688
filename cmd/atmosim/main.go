// atmosim simulates an AtmosTrack field device: it generates plausible
// sensor payloads (with display jitter applied here, outside the
// deterministic core) and POSTs them to the ingestion endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"

	"github.com/atmostrack/atmostrack/internal/convert"
	"github.com/atmostrack/atmostrack/internal/httputil"
)

var cli struct {
	Server   string        `help:"Base URL of the AtmosTrack server." default:"http://localhost:8080" env:"ATMOSTRACK_SERVER"`
	Device   string        `help:"Device ID to report as." default:"esp32-01"`
	Interval time.Duration `help:"Delay between readings." default:"5s"`
	Count    int           `help:"Number of readings to send (0 = run until interrupted)."`
	Lat      float64       `help:"Base latitude." default:"28.6139"`
	Lng      float64       `help:"Base longitude." default:"77.2090"`
	Jitter   float64       `help:"Location jitter in degrees." default:"0.0005"`
	DropRate float64       `help:"Probability a given sensor block is omitted, simulating sensor failure." default:"0.05"`
}

type payload struct {
	DeviceID    string         `json:"deviceId"`
	Environment map[string]any `json:"environment,omitempty"`
	Gas         map[string]any `json:"gas,omitempty"`
	IMU         map[string]any `json:"imu,omitempty"`
	Location    map[string]any `json:"location,omitempty"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("atmosim"),
		kong.Description("Synthetic AtmosTrack device for local development."),
	)

	client := httputil.NewClient()
	mq135 := 750.0

	sent := 0
	for cli.Count == 0 || sent < cli.Count {
		mq135 += rand.Float64()*80 - 40
		if mq135 < 200 {
			mq135 = 200
		}
		if mq135 > 3800 {
			mq135 = 3800
		}

		p := payload{DeviceID: cli.Device}

		if rand.Float64() >= cli.DropRate {
			p.Environment = map[string]any{
				"temperature": 24 + rand.Float64()*10,
				"humidity":    40 + rand.Float64()*30,
			}
		}
		if rand.Float64() >= cli.DropRate {
			p.Gas = map[string]any{
				"mq135Raw":  mq135,
				"mq135Volt": convert.VoltageFromRaw(mq135),
				"co2Ppm":    convert.MQ135RawToCO2(mq135),
			}
		}
		if rand.Float64() >= cli.DropRate {
			spike := 1.0
			if rand.Float64() < 0.1 {
				spike = 20 // passing truck
			}
			p.IMU = map[string]any{
				"ax": int64(rand.NormFloat64() * 800 * spike),
				"ay": int64(rand.NormFloat64() * 800 * spike),
				"az": int64(16384 + rand.NormFloat64()*400*spike),
				"gx": int64(rand.NormFloat64() * 50),
				"gy": int64(rand.NormFloat64() * 50),
				"gz": int64(rand.NormFloat64() * 50),
			}
		}
		p.Location = map[string]any{
			"lat":      cli.Lat + (rand.Float64()*2-1)*cli.Jitter,
			"lng":      cli.Lng + (rand.Float64()*2-1)*cli.Jitter,
			"speedKmh": rand.Float64() * 3,
		}

		if err := post(client, p); err != nil {
			log.Printf("atmosim: %v", err)
		} else {
			log.Printf("atmosim: sent reading (mq135=%.0f)", mq135)
		}

		sent++
		if cli.Count != 0 && sent >= cli.Count {
			break
		}
		time.Sleep(cli.Interval)
	}
}

func post(client *http.Client, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	operation := func() error {
		resp, err := client.Post(cli.Server+"/api/ingest", "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("ingest: status %d: %s", resp.StatusCode, string(b)))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ingest: status %d", resp.StatusCode)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(operation, bo)
}
