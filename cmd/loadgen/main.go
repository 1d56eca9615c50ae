// loadgen drives POST /datasets/fetch with a Zipf-skewed mix of areas and
// queries and reports latency percentiles and the combined-cache hit ratio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Config struct {
	TargetURL      string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	Areas          int
	Queries        string
	Radius         float64
	RequestTimeout time.Duration
	Out            string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/datasets/fetch", "fetch endpoint")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.Areas, "areas", 64, "distinct search centers")
	flag.StringVar(&cfg.Queries, "queries", "restaurant AND NOT bar;cafe OR bakery;museum", "';'-separated boolean queries")
	flag.Float64Var(&cfg.Radius, "radius", 750, "search radius in meters")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 15*time.Second, "per-request timeout")
	flag.StringVar(&cfg.Out, "out", "", "optional summary JSON path")
	flag.Parse()
	return cfg
}

type fetchBody struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Radius       float64 `json:"radius"`
	BooleanQuery string  `json:"boolean_query"`
}

// makeWorkload crosses centers around a few cities with the query list.
func makeWorkload(areas int, queries []string, radius float64, r *rand.Rand) []fetchBody {
	cities := [][2]float64{
		{59.3293, 18.0686},
		{57.7089, 11.9746},
		{55.6050, 13.0038},
	}
	out := make([]fetchBody, 0, areas*len(queries))
	for i := range areas {
		c := cities[i%len(cities)]
		lat := c[0] + (r.Float64()-0.5)*0.1
		lng := c[1] + (r.Float64()-0.5)*0.1
		for _, q := range queries {
			out = append(out, fetchBody{Lat: lat, Lng: lng, Radius: radius, BooleanQuery: q})
		}
	}
	return out
}

type sample struct {
	latency time.Duration
	status  int
	hit     bool
	err     bool
}

type summary struct {
	Start         time.Time `json:"start"`
	DurationSec   float64   `json:"duration_sec"`
	Total         int64     `json:"total"`
	Errors        int64     `json:"errors"`
	Hits          int64     `json:"hits"`
	HitRatio      float64   `json:"hit_ratio"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	Workload      int       `json:"workload"`
	TargetURL     string    `json:"target"`
}

func main() {
	cfg := loadConfig()

	var queries []string
	for q := range strings.SplitSeq(cfg.Queries, ";") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 || cfg.Areas <= 0 || cfg.Concurrency <= 0 {
		log.Fatalf("need at least one query, one area and one worker")
	}

	seed := time.Now().UnixNano()
	work := makeWorkload(cfg.Areas, queries, cfg.Radius, rand.New(rand.NewSource(seed)))
	imax := uint64(len(work) - 1)
	client := &http.Client{Timeout: cfg.RequestTimeout}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samples := make(chan sample, 4096)
	var wg sync.WaitGroup
	start := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d workload=%d", cfg.TargetURL, cfg.Duration, cfg.Concurrency, len(work))

	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			zipf := rand.NewZipf(rand.New(rand.NewSource(seed+int64(id)+1)), cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				body, _ := json.Marshal(work[zipf.Uint64()])
				s := do(ctx, client, cfg.TargetURL, body)
				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(samples)
	}()

	var (
		total, errs, hits int64
		latMs             []float64
	)
	for s := range samples {
		total++
		switch {
		case s.err:
			errs++
		default:
			latMs = append(latMs, float64(s.latency.Microseconds())/1000.0)
			if s.hit {
				hits++
			}
		}
	}
	elapsed := time.Since(start).Seconds()
	sort.Float64s(latMs)

	sum := summary{
		Start:         start.UTC(),
		DurationSec:   elapsed,
		Total:         total,
		Errors:        errs,
		Hits:          hits,
		HitRatio:      ratio(hits, total-errs),
		ThroughputRPS: float64(total) / elapsed,
		P50Ms:         percentile(latMs, 50),
		P95Ms:         percentile(latMs, 95),
		P99Ms:         percentile(latMs, 99),
		Concurrency:   cfg.Concurrency,
		Workload:      len(work),
		TargetURL:     cfg.TargetURL,
	}
	log.Printf("done: total=%d err=%d hit_ratio=%.3f thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		sum.Total, sum.Errors, sum.HitRatio, sum.ThroughputRPS, sum.P50Ms, sum.P95Ms, sum.P99Ms)

	if cfg.Out != "" {
		if err := writeSummary(cfg.Out, sum); err != nil {
			log.Printf("write summary: %v", err)
		}
	}
}

func do(ctx context.Context, client *http.Client, target string, body []byte) sample {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return sample{err: true}
	}
	req.Header.Set("Content-Type", "application/json")
	t0 := time.Now()
	resp, err := client.Do(req)
	s := sample{latency: time.Since(t0)}
	if err != nil {
		s.err = true
		return s
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	s.status = resp.StatusCode
	s.err = resp.StatusCode != http.StatusOK
	s.hit = resp.Header.Get("X-Cache") == "HIT"
	return s
}

func writeSummary(path string, s summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func ratio(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
