// Command loadtest drives GET /api/v1/search with a rotating set of patterns
// and worker counts and reports latency percentiles, status codes and the
// observed cache hit rate.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Patterns    []string
	Workers     []int
	Strategy    string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	matches       atomic.Int64
	latenciesMu   sync.Mutex
	latencies     []time.Duration
	statusCodesMu sync.Mutex
	statusCodes   map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

type searchResponse struct {
	TotalMatches int  `json:"total_matches"`
	CacheHit     bool `json:"cache_hit"`
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, resp *searchResponse, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if resp != nil {
		s.matches.Add(int64(resp.TotalMatches))
		if resp.CacheHit {
			s.cacheHits.Add(1)
		}
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	s.statusCodes[statusCode]++
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent clients")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	patterns := flag.String("patterns", "14159,2653,58979,323846,999999,0000,31415926,271828,1,12", "comma separated patterns")
	workers := flag.String("workers", "1,2,4,8", "comma separated worker counts to rotate through")
	strategy := flag.String("strategy", "", "match strategy (server default when empty)")
	flag.Parse()

	workerCounts, err := parseInts(*workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -workers: %v\n", err)
		os.Exit(2)
	}
	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Patterns:    strings.Split(*patterns, ","),
		Workers:     workerCounts,
		Strategy:    *strategy,
	}

	fmt.Println("=== blocksearch load test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Patterns:    %d unique\n", len(cfg.Patterns))
	fmt.Printf("Workers:     %v\n", cfg.Workers)
	fmt.Println()

	summary := summarize(runLoadTest(cfg), cfg.Duration)
	summary.Print(os.Stdout)
	if summary.Total == 0 {
		os.Exit(1)
	}
}

func parseInts(csv string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(csv, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func searchURL(cfg Config, i int) string {
	q := url.Values{}
	q.Set("pattern", cfg.Patterns[i%len(cfg.Patterns)])
	q.Set("workers", strconv.Itoa(cfg.Workers[i%len(cfg.Workers)]))
	q.Set("limit", "10")
	if cfg.Strategy != "" {
		q.Set("strategy", cfg.Strategy)
	}
	return cfg.BaseURL + "/api/v1/search?" + q.Encode()
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; ctx.Err() == nil; i++ {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL(cfg, i), nil)
				if err != nil {
					stats.RecordRequest(0, 0, nil, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(time.Since(start), 0, nil, err)
					}
					continue
				}
				var body searchResponse
				decodeErr := json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				elapsed := time.Since(start)
				if decodeErr != nil || resp.StatusCode != http.StatusOK {
					stats.RecordRequest(elapsed, resp.StatusCode, nil, nil)
					continue
				}
				stats.RecordRequest(elapsed, resp.StatusCode, &body, nil)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// Summary is the digest of one run.
type Summary struct {
	Total, Success, Failed int64
	RPS                    float64
	CacheHitRate           float64
	AvgMatches             float64
	Min, Avg, Max, StdDev  time.Duration
	P50, P90, P95, P99     time.Duration
	StatusCodes            map[int]int64
}

func summarize(stats *Stats, duration time.Duration) Summary {
	sum := Summary{
		Total:       stats.totalRequests.Load(),
		Success:     stats.successCount.Load(),
		Failed:      stats.errorCount.Load(),
		StatusCodes: make(map[int]int64),
	}
	if sum.Total > 0 && duration > 0 {
		sum.RPS = float64(sum.Total) / duration.Seconds()
	}
	if sum.Success > 0 {
		sum.CacheHitRate = float64(stats.cacheHits.Load()) / float64(sum.Success)
		sum.AvgMatches = float64(stats.matches.Load()) / float64(sum.Success)
	}

	stats.statusCodesMu.Lock()
	for code, n := range stats.statusCodes {
		sum.StatusCodes[code] = n
	}
	stats.statusCodesMu.Unlock()

	stats.latenciesMu.Lock()
	lat := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()
	if len(lat) == 0 {
		return sum
	}
	slices.Sort(lat)
	var total time.Duration
	for _, l := range lat {
		total += l
	}
	sum.Min, sum.Max = lat[0], lat[len(lat)-1]
	sum.Avg = total / time.Duration(len(lat))
	sum.P50, sum.P90 = percentile(lat, 50), percentile(lat, 90)
	sum.P95, sum.P99 = percentile(lat, 95), percentile(lat, 99)
	var sq float64
	for _, l := range lat {
		d := float64(l - sum.Avg)
		sq += d * d
	}
	sum.StdDev = time.Duration(math.Sqrt(sq / float64(len(lat))))
	return sum
}

func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.Total)
	fmt.Fprintf(w, "Successful:      %d\n", s.Success)
	fmt.Fprintf(w, "Errors:          %d\n", s.Failed)
	if s.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.Failed)/float64(s.Total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", s.RPS)
	}
	if s.Success > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", s.CacheHitRate*100)
		fmt.Fprintf(w, "Avg Matches:     %.1f\n", s.AvgMatches)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
		for _, row := range []struct {
			name string
			d    time.Duration
		}{{"Min", s.Min}, {"Avg", s.Avg}, {"P50", s.P50}, {"P90", s.P90}, {"P95", s.P95}, {"P99", s.P99}, {"Max", s.Max}, {"StdDev", s.StdDev}} {
			fmt.Fprintf(tw, "%s:\t%s\n", row.name, row.d)
		}
		tw.Flush()
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.StatusCodes[code])
	}
	if s.Total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
