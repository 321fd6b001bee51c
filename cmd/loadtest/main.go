package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	headerUserID    = "X-User-Id"
	headerUserRole  = "X-User-Role"
	headerSignature = "X-Signature"

	defaultPrice = int64(1000)
	defaultQty   = int32(1)

	codeTransportError = "transport_error"
)

type loadMode string

const (
	modeCreate          loadMode = "create"
	modeCreatePay       loadMode = "create-pay"
	modeCreatePayCancel loadMode = "create-pay-cancel"
)

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	cancelRate    int
	itemID        string
	priceMinor    int64
	seedQty       int32
	webhookSecret string
	userTag       string
	outputPath    string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{
		methods: make(map[string]*methodStats),
	}
}

// record учитывает вызов; код "2xx" считается успехом, codeTransportError и
// все остальные коды — ошибкой.
func (c *collector) record(method string, latency time.Duration, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[method]
	if !ok {
		stats = &methodStats{
			codes: make(map[string]int64),
		}
		c.methods[method] = stats
	}

	stats.calls++
	if isSuccessCode(code) {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func isSuccessCode(code string) bool {
	return len(code) == 3 && code[0] == '2'
}

func (c *collector) snapshot(name string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.methods[name]
	if !ok {
		return methodReport{}, false
	}

	codesCopy := make(map[string]int64, len(stats.codes))
	for code, count := range stats.codes {
		codesCopy[code] = count
	}

	return methodReport{
		Calls:     stats.calls,
		Success:   stats.success,
		Failed:    stats.failed,
		ErrorRate: ratio(stats.failed, stats.calls),
		Codes:     codesCopy,
		LatencyMs: buildLatencySummary(stats.latencies),
	}, true
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	scenarioStats := c.methods["scenario"]
	if scenarioStats != nil {
		result.TotalScenarios = scenarioStats.calls
		result.SuccessScenarios = scenarioStats.success
		result.FailedScenarios = scenarioStats.failed
		result.ErrorRate = ratio(scenarioStats.failed, scenarioStats.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenarioStats.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codesCopy := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codesCopy[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codesCopy,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string
	var seedQty int

	flag.StringVar(&cfg.baseURL, "addr", "http://localhost:8080", "API base URL")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-pay | create-pay-cancel")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create-pay mode (0..100)")
	flag.StringVar(&cfg.itemID, "item", "loadtest-gpu", "stock item id used by scenarios")
	flag.Int64Var(&cfg.priceMinor, "price-minor", defaultPrice, "stock item price in minor units (used for seeding)")
	flag.IntVar(&seedQty, "seed-qty", 0, "seed the stock item with this quantity before the run (0 = no seeding)")
	flag.StringVar(&cfg.webhookSecret, "webhook-secret", "", "payment webhook secret (fallback: PCSHOP_WEBHOOK_SECRET; required for pay modes)")
	flag.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.webhookSecret == "" {
		cfg.webhookSecret = strings.TrimSpace(os.Getenv("PCSHOP_WEBHOOK_SECRET"))
	}
	if seedQty < 0 || seedQty > math.MaxInt32 {
		return cfg, errors.New("seed-qty must be between 0 and 2147483647")
	}
	cfg.seedQty = int32(seedQty)

	if strings.TrimSpace(cfg.baseURL) == "" {
		return cfg, errors.New("addr is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.itemID) == "" {
		return cfg, errors.New("item is required")
	}
	if strings.TrimSpace(cfg.userTag) == "" {
		return cfg, errors.New("user-tag is required")
	}
	if cfg.mode != modeCreate && cfg.webhookSecret == "" {
		return cfg, errors.New("webhook-secret is required for pay modes (or set PCSHOP_WEBHOOK_SECRET)")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreatePay:
		return modeCreatePay, nil
	case modeCreatePayCancel:
		return modeCreatePayCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// shopClient описывает операции API, которые дергает сценарий.
type shopClient interface {
	SeedStockItem(ctx context.Context, itemID string, priceMinor int64, qty int32) error
	CreateOrder(ctx context.Context, userID, itemID string, qty int32) (orderID string, totalMinor int64, code string, err error)
	PayOrder(ctx context.Context, orderID, eventID string, amountMinor int64) (code string, err error)
	CancelOrder(ctx context.Context, userID, orderID string) (code string, err error)
}

type httpShopClient struct {
	baseURL string
	secret  []byte
	client  *http.Client
}

func newHTTPShopClient(cfg config) *httpShopClient {
	return &httpShopClient{
		baseURL: strings.TrimRight(cfg.baseURL, "/"),
		secret:  []byte(cfg.webhookSecret),
		client:  &http.Client{Timeout: cfg.timeout},
	}
}

func (c *httpShopClient) do(ctx context.Context, method, path string, headers map[string]string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func (c *httpShopClient) SeedStockItem(ctx context.Context, itemID string, priceMinor int64, qty int32) error {
	payload, err := json.Marshal(map[string]any{
		"kind":        "COMPONENT",
		"name":        "Load Test GPU",
		"price_minor": priceMinor,
		"quantity":    qty,
	})
	if err != nil {
		return err
	}

	headers := map[string]string{
		headerUserID:   "loadtest-admin",
		headerUserRole: "ADMIN",
	}
	status, body, err := c.do(ctx, http.MethodPut, "/catalog/"+itemID, headers, payload)
	if err != nil {
		return fmt.Errorf("seed stock item: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("seed stock item: unexpected status %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *httpShopClient) CreateOrder(ctx context.Context, userID, itemID string, qty int32) (string, int64, string, error) {
	payload, err := json.Marshal(map[string]any{
		"payment_method": "card",
		"items": []map[string]any{
			{"product_id": itemID, "qty": qty},
		},
	})
	if err != nil {
		return "", 0, codeTransportError, err
	}

	status, body, err := c.do(ctx, http.MethodPost, "/orders", map[string]string{headerUserID: userID}, payload)
	if err != nil {
		return "", 0, codeTransportError, err
	}
	if status != http.StatusCreated {
		return "", 0, fmt.Sprintf("%d", status), fmt.Errorf("create order: unexpected status %d", status)
	}

	var created struct {
		ID         string `json:"id"`
		TotalMinor int64  `json:"total_minor"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", 0, codeTransportError, fmt.Errorf("decode create response: %w", err)
	}
	return created.ID, created.TotalMinor, fmt.Sprintf("%d", status), nil
}

func (c *httpShopClient) PayOrder(ctx context.Context, orderID, eventID string, amountMinor int64) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"id":        eventID,
		"eventType": "payment_succeeded",
		"amount":    amountMinor,
		"metadata":  map[string]any{"orderId": orderID},
	})
	if err != nil {
		return codeTransportError, err
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	headers := map[string]string{
		headerSignature: hex.EncodeToString(mac.Sum(nil)),
	}

	status, _, err := c.do(ctx, http.MethodPost, "/webhook/payment", headers, payload)
	if err != nil {
		return codeTransportError, err
	}
	if status != http.StatusOK {
		return fmt.Sprintf("%d", status), fmt.Errorf("pay order: unexpected status %d", status)
	}
	return fmt.Sprintf("%d", status), nil
}

func (c *httpShopClient) CancelOrder(ctx context.Context, userID, orderID string) (string, error) {
	payload, err := json.Marshal(map[string]any{"action": "cancel", "reason": "load-cancel"})
	if err != nil {
		return codeTransportError, err
	}

	status, _, err := c.do(ctx, http.MethodPatch, "/orders/"+orderID, map[string]string{headerUserID: userID}, payload)
	if err != nil {
		return codeTransportError, err
	}
	if status != http.StatusOK {
		return fmt.Sprintf("%d", status), fmt.Errorf("cancel order: unexpected status %d", status)
	}
	return fmt.Sprintf("%d", status), nil
}

var _ shopClient = (*httpShopClient)(nil)

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := newHTTPShopClient(cfg)

	if cfg.seedQty > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		err := client.SeedStockItem(ctx, cfg.itemID, cfg.priceMinor, cfg.seedQty)
		cancel()
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(client, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(
	client shopClient,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioCode := "200"
	defer func() {
		col.record("scenario", time.Since(scenarioStart), scenarioCode)
	}()

	userID := fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index)

	orderID, totalMinor, code, err := callCreateOrder(client, cfg, userID, col)
	if err != nil {
		scenarioCode = code
		return err
	}
	if orderID == "" {
		scenarioCode = codeTransportError
		return errors.New("create response returned empty order id")
	}

	if cfg.mode == modeCreate {
		return nil
	}

	eventID := fmt.Sprintf("lt-pay-%s-%d", runID, index)
	if code, err := callPayOrder(client, cfg, orderID, eventID, totalMinor, col); err != nil {
		scenarioCode = code
		return err
	}

	if cfg.mode == modeCreatePayCancel || (cfg.mode == modeCreatePay && shouldCancelScenario(index, cfg.cancelRate)) {
		if code, err := callCancelOrder(client, cfg, userID, orderID, col); err != nil {
			scenarioCode = code
			return err
		}
	}

	return nil
}

func callCreateOrder(client shopClient, cfg config, userID string, col *collector) (string, int64, string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	orderID, totalMinor, code, err := client.CreateOrder(ctx, userID, cfg.itemID, defaultQty)
	col.record("CreateOrder", time.Since(start), code)
	return orderID, totalMinor, code, err
}

func callPayOrder(client shopClient, cfg config, orderID, eventID string, amountMinor int64, col *collector) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	code, err := client.PayOrder(ctx, orderID, eventID, amountMinor)
	col.record("PayOrder", time.Since(start), code)
	return code, err
}

func callCancelOrder(client shopClient, cfg config, userID, orderID string, col *collector) (string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	code, err := client.CancelOrder(ctx, userID, orderID)
	col.record("CancelOrder", time.Since(start), code)
	return code, err
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	methodNames := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name == "scenario" {
			continue
		}
		methodNames = append(methodNames, name)
	}
	sort.Strings(methodNames)
	for _, name := range methodNames {
		stats := result.Methods[name]
		fmt.Printf(
			"%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name,
			stats.Calls,
			stats.Success,
			stats.Failed,
			stats.ErrorRate,
			stats.LatencyMs.P95,
		)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
