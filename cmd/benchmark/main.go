// Benchmark tool for load-testing the evaluation endpoint.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -n 10000 -workers 10
//
// This tool:
//   1. Generates synthetic transactions (a tunable share of them risky)
//   2. Sends each to POST /evaluate with concurrent workers
//   3. Reports throughput, latency percentiles, and the classification mix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EvaluateRequest is the SentinelStream API request format.
type EvaluateRequest struct {
	TransactionID string  `json:"transaction_id"`
	AccountID     string  `json:"account_id"`
	Amount        float64 `json:"amount"`
	Location      string  `json:"location"`
	Merchant      string  `json:"merchant"`
}

// EvaluateResponse is the SentinelStream API response format.
type EvaluateResponse struct {
	TransactionID  string   `json:"transaction_id"`
	Score          float64  `json:"score"`
	Classification string   `json:"classification"`
	RiskLevel      string   `json:"risk_level"`
	TriggeredRules []string `json:"triggered_rules"`
}

var (
	safeLocations  = []string{"US", "CA", "GB", "DE", "FR"}
	riskyLocations = []string{"HighRiskCountry", "Unknown"}
	safeMerchants  = []string{"GroceryStore", "CoffeeShop", "BookStore", "GasStation"}
	riskyMerchants = []string{"GamblingSite", "CryptoExchange"}
)

type counters struct {
	total     int64
	errors    int64
	approved  int64
	reviewed  int64
	rejected  int64
	alertable int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "SentinelStream base URL")
	apiKey := flag.String("key", "", "API key for X-API-Key header")
	n := flag.Int("n", 10000, "Number of transactions to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	accounts := flag.Int("accounts", 100, "Number of distinct accounts")
	riskRate := flag.Float64("risk", 0.1, "Share of risky transactions (0.0-1.0)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           SENTINELSTREAM BENCHMARK - Load Generator           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nTarget URL:    %s\n", *baseURL)
	fmt.Printf("Transactions:  %d\n", *n)
	fmt.Printf("Workers:       %d\n", *workers)
	fmt.Printf("Accounts:      %d\n", *accounts)
	fmt.Printf("Risk Rate:     %.2f\n", *riskRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: server not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run cmd/sentinelstream/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Server is healthy")

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	c, latencies := run(*baseURL, *apiKey, *n, *workers, *accounts, *riskRate, *seed)
	duration := time.Since(start)

	printResults(c, latencies, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func run(baseURL, apiKey string, n, numWorkers, accounts int, riskRate float64, seed int64) (*counters, []time.Duration) {
	c := &counters{}

	work := make(chan EvaluateRequest, 100)
	results := make(chan time.Duration, n)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				resp, err := evaluate(client, baseURL, apiKey, req)
				elapsed := time.Since(start)

				atomic.AddInt64(&c.total, 1)
				if err != nil {
					atomic.AddInt64(&c.errors, 1)
					continue
				}

				results <- elapsed

				switch resp.Classification {
				case "approve":
					atomic.AddInt64(&c.approved, 1)
				case "review":
					atomic.AddInt64(&c.reviewed, 1)
					atomic.AddInt64(&c.alertable, 1)
				case "reject":
					atomic.AddInt64(&c.rejected, 1)
					atomic.AddInt64(&c.alertable, 1)
				}
			}
		}()
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		work <- generate(rng, accounts, riskRate)
	}
	close(work)

	wg.Wait()
	close(results)

	latencies := make([]time.Duration, 0, n)
	for d := range results {
		latencies = append(latencies, d)
	}
	return c, latencies
}

func generate(rng *rand.Rand, accounts int, riskRate float64) EvaluateRequest {
	risky := rng.Float64() < riskRate

	req := EvaluateRequest{
		TransactionID: uuid.New().String(),
		AccountID:     fmt.Sprintf("account-%04d", rng.Intn(accounts)),
	}

	if risky {
		req.Amount = 5000 + rng.Float64()*20000
		req.Location = riskyLocations[rng.Intn(len(riskyLocations))]
		req.Merchant = riskyMerchants[rng.Intn(len(riskyMerchants))]
	} else {
		req.Amount = 5 + rng.Float64()*500
		req.Location = safeLocations[rng.Intn(len(safeLocations))]
		req.Merchant = safeMerchants[rng.Intn(len(safeMerchants))]
	}

	return req
}

func evaluate(client *http.Client, baseURL, apiKey string, req EvaluateRequest) (*EvaluateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(c *counters, latencies []time.Duration, duration time.Duration) {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 CLASSIFICATION MIX\n")
	fmt.Printf("   Total Sent:   %d\n", c.total)
	fmt.Printf("   Approved:     %d\n", c.approved)
	fmt.Printf("   Reviewed:     %d\n", c.reviewed)
	fmt.Printf("   Rejected:     %d\n", c.rejected)
	fmt.Printf("   Alertable:    %d\n", c.alertable)
	fmt.Printf("   Errors:       %d\n", c.errors)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:  %v\n", duration.Round(time.Millisecond))
	if len(latencies) > 0 {
		var sum time.Duration
		for _, d := range latencies {
			sum += d
		}
		fmt.Printf("   Throughput:      %.2f tx/sec\n", float64(c.total)/duration.Seconds())
		fmt.Printf("   Avg Latency:     %v\n", (sum / time.Duration(len(latencies))).Round(time.Microsecond))
		fmt.Printf("   p50 Latency:     %v\n", percentile(latencies, 0.50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:     %v\n", percentile(latencies, 0.95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:     %v\n", percentile(latencies, 0.99).Round(time.Microsecond))
		fmt.Printf("   Max Latency:     %v\n", latencies[len(latencies)-1].Round(time.Microsecond))
	}

	fmt.Println()
}
