package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeShopClient struct {
	seedFn   func(ctx context.Context, itemID string, priceMinor int64, qty int32) error
	createFn func(ctx context.Context, userID, itemID string, qty int32) (string, int64, string, error)
	payFn    func(ctx context.Context, orderID, eventID string, amountMinor int64) (string, error)
	cancelFn func(ctx context.Context, userID, orderID string) (string, error)
}

func (f *fakeShopClient) SeedStockItem(ctx context.Context, itemID string, priceMinor int64, qty int32) error {
	if f.seedFn == nil {
		return errors.New("unexpected SeedStockItem call")
	}
	return f.seedFn(ctx, itemID, priceMinor, qty)
}

func (f *fakeShopClient) CreateOrder(ctx context.Context, userID, itemID string, qty int32) (string, int64, string, error) {
	if f.createFn == nil {
		return "", 0, codeTransportError, errors.New("unexpected CreateOrder call")
	}
	return f.createFn(ctx, userID, itemID, qty)
}

func (f *fakeShopClient) PayOrder(ctx context.Context, orderID, eventID string, amountMinor int64) (string, error) {
	if f.payFn == nil {
		return codeTransportError, errors.New("unexpected PayOrder call")
	}
	return f.payFn(ctx, orderID, eventID, amountMinor)
}

func (f *fakeShopClient) CancelOrder(ctx context.Context, userID, orderID string) (string, error) {
	if f.cancelFn == nil {
		return codeTransportError, errors.New("unexpected CancelOrder call")
	}
	return f.cancelFn(ctx, userID, orderID)
}

var _ shopClient = (*fakeShopClient)(nil)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    loadMode
		wantErr string
	}{
		{name: "create", input: "create", want: modeCreate},
		{name: "create-pay", input: "create-pay", want: modeCreatePay},
		{name: "create-pay-cancel", input: "create-pay-cancel", want: modeCreatePayCancel},
		{name: "unsupported", input: "bad", wantErr: "unsupported mode"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseMode(tc.input)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("unexpected mode: got %q want %q", got, tc.want)
			}
		})
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-addr=http://127.0.0.1:8080",
			"-mode=create-pay",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-cancel-rate=10",
			"-item=gpu-load",
			"-price-minor=99",
			"-seed-qty=1000",
			"-webhook-secret=test-secret",
			"-user-tag=stage",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !cfg.totalSet {
				t.Fatalf("expected totalSet=true")
			}
			if cfg.duration != 0 {
				t.Fatalf("expected zero duration, got %s", cfg.duration)
			}
			if cfg.mode != modeCreatePay {
				t.Fatalf("unexpected mode: %s", cfg.mode)
			}
			if cfg.total != 12 || cfg.concurrency != 3 || cfg.seedQty != 1000 {
				t.Fatalf("unexpected numeric config: %+v", cfg)
			}
			if cfg.timeout != 2*time.Second {
				t.Fatalf("unexpected timeout: %s", cfg.timeout)
			}
			if cfg.itemID != "gpu-load" || cfg.webhookSecret != "test-secret" {
				t.Fatalf("unexpected config: %+v", cfg)
			}
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-duration=3s",
			"-concurrency=2",
		}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.duration != 3*time.Second {
				t.Fatalf("unexpected duration: %s", cfg.duration)
			}
			if cfg.totalSet {
				t.Fatalf("expected totalSet=false when -total was not provided")
			}
		})
	})

	t.Run("secret from env", func(t *testing.T) {
		t.Setenv("PCSHOP_WEBHOOK_SECRET", "env-secret")
		withCLIArgs(t, []string{"-mode=create-pay"}, func() {
			cfg, err := parseConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.webhookSecret != "env-secret" {
				t.Fatalf("expected secret from env, got %q", cfg.webhookSecret)
			}
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		t.Setenv("PCSHOP_WEBHOOK_SECRET", "")

		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "invalid cancel rate", args: []string{"-cancel-rate=101"}, wantErr: "cancel-rate must be between 0 and 100"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "negative seed qty", args: []string{"-seed-qty=-1"}, wantErr: "seed-qty must be between"},
			{name: "pay mode without secret", args: []string{"-mode=create-pay"}, wantErr: "webhook-secret is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
						t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
					}
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
			t.Fatalf("unexpected jobs sequence: %v", got)
		}
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		if count == 0 {
			t.Fatalf("expected non-zero jobs for duration mode")
		}
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		if count != 3 {
			t.Fatalf("expected 3 jobs, got %d", count)
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record("scenario", 10*time.Millisecond, "200")
	c.record("scenario", 20*time.Millisecond, "500")
	c.record("CreateOrder", 15*time.Millisecond, "201")

	snap, ok := c.snapshot("scenario")
	if !ok {
		t.Fatalf("scenario snapshot missing")
	}
	if snap.Calls != 2 || snap.Success != 1 || snap.Failed != 1 {
		t.Fatalf("unexpected scenario snapshot: %+v", snap)
	}
	if snap.Codes["200"] != 1 || snap.Codes["500"] != 1 {
		t.Fatalf("unexpected codes: %+v", snap.Codes)
	}

	r := c.buildReport(time.Now(), 2*time.Second)
	if r.TotalScenarios != 2 || r.FailedScenarios != 1 {
		t.Fatalf("unexpected report totals: %+v", r)
	}
	if r.RPS <= 0 {
		t.Fatalf("expected positive rps, got %f", r.RPS)
	}
	if _, ok := r.Methods["CreateOrder"]; !ok {
		t.Fatalf("expected CreateOrder stats in report")
	}
}

func TestUtilityFunctions(t *testing.T) {
	if !isSuccessCode("200") || !isSuccessCode("201") {
		t.Fatal("2xx codes must count as success")
	}
	if isSuccessCode("409") || isSuccessCode(codeTransportError) {
		t.Fatal("non-2xx codes must count as failure")
	}

	if got := ratio(1, 4); got != 0.25 {
		t.Fatalf("ratio mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	if summary.P50 <= 0 || summary.P95 <= 0 || summary.Max != 40 {
		t.Fatalf("unexpected latency summary: %+v", summary)
	}
	if p := percentile(values, 95); p <= 0 {
		t.Fatalf("unexpected percentile: %f", p)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second}); got != "duration:2s" {
		t.Fatalf("unexpected duration run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped duration run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")

	sample := report{TotalScenarios: 2, SuccessScenarios: 2}
	if err := writeJSONReport(path, sample); err != nil {
		t.Fatalf("writeJSONReport error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.TotalScenarios != 2 || decoded.SuccessScenarios != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}
}

func TestRunScenario(t *testing.T) {
	c := newCollector()

	runCfg := config{
		mode:       modeCreatePayCancel,
		timeout:    time.Second,
		itemID:     "gpu-load",
		priceMinor: 100,
		userTag:    "load",
	}

	scenarioClient := &fakeShopClient{
		createFn: func(_ context.Context, userID, itemID string, qty int32) (string, int64, string, error) {
			if !strings.HasPrefix(userID, "load-run-1-") {
				t.Fatalf("unexpected user id: %s", userID)
			}
			if itemID != "gpu-load" || qty != 1 {
				t.Fatalf("unexpected order line: %s x%d", itemID, qty)
			}
			return "order-1", 100, "201", nil
		},
		payFn: func(_ context.Context, orderID, eventID string, amountMinor int64) (string, error) {
			if orderID != "order-1" || amountMinor != 100 {
				t.Fatalf("unexpected payment: %s %d", orderID, amountMinor)
			}
			if !strings.HasPrefix(eventID, "lt-pay-run-1-") {
				t.Fatalf("unexpected event id: %s", eventID)
			}
			return "200", nil
		},
		cancelFn: func(_ context.Context, userID, orderID string) (string, error) {
			if orderID != "order-1" {
				t.Fatalf("unexpected cancel order id: %s", orderID)
			}
			return "200", nil
		},
	}
	if err := runScenario(scenarioClient, runCfg, 1, "run-1", c); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}

	snap, ok := c.snapshot("CreateOrder")
	if !ok || snap.Calls == 0 {
		t.Fatalf("CreateOrder metric missing")
	}

	failingClient := &fakeShopClient{
		createFn: func(context.Context, string, string, int32) (string, int64, string, error) {
			return "", 0, "503", errors.New("create order: unexpected status 503")
		},
	}
	if err := runScenario(failingClient, runCfg, 2, "run-2", c); err == nil {
		t.Fatal("expected scenario failure")
	}

	emptyIDClient := &fakeShopClient{
		createFn: func(context.Context, string, string, int32) (string, int64, string, error) {
			return "", 0, "201", nil
		},
	}
	if err := runScenario(emptyIDClient, runCfg, 3, "run-3", c); err == nil || !strings.Contains(err.Error(), "empty order id") {
		t.Fatalf("expected empty id error, got %v", err)
	}

	// В режиме create-pay отмена выполняется согласно cancel-rate.
	var cancels int64
	payOnlyCfg := runCfg
	payOnlyCfg.mode = modeCreatePay
	payOnlyCfg.cancelRate = 100
	countingClient := &fakeShopClient{
		createFn: func(context.Context, string, string, int32) (string, int64, string, error) {
			return "order-1", 100, "201", nil
		},
		payFn: func(context.Context, string, string, int64) (string, error) {
			return "200", nil
		},
		cancelFn: func(context.Context, string, string) (string, error) {
			atomic.AddInt64(&cancels, 1)
			return "200", nil
		},
	}
	if err := runScenario(countingClient, payOnlyCfg, 4, "run-4", c); err != nil {
		t.Fatalf("runScenario failed: %v", err)
	}
	if cancels != 1 {
		t.Fatalf("expected one cancel with cancel-rate=100, got %d", cancels)
	}
}

func TestShouldCancelScenario(t *testing.T) {
	if shouldCancelScenario(5, 0) {
		t.Fatal("cancel-rate=0 must never cancel")
	}
	if !shouldCancelScenario(5, 100) {
		t.Fatal("cancel-rate=100 must always cancel")
	}
	if !shouldCancelScenario(10, 50) || shouldCancelScenario(90, 50) {
		t.Fatal("cancel-rate=50 must cancel the first half of each hundred")
	}
}

func TestHTTPShopClient(t *testing.T) {
	const secret = "test-secret"

	var payBody []byte
	var paySignature string

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /catalog/gpu-load", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserRole) != "ADMIN" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"id":"gpu-load"}`))
	})
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-1","total_minor":100}`))
	})
	mux.HandleFunc("POST /webhook/payment", func(w http.ResponseWriter, r *http.Request) {
		payBody, _ = io.ReadAll(r.Body)
		paySignature = r.Header.Get(headerSignature)
		_, _ = w.Write([]byte(`{"received":true}`))
	})
	mux.HandleFunc("PATCH /orders/order-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"order-1","status":"CANCELLED"}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newHTTPShopClient(config{
		baseURL:       srv.URL,
		timeout:       2 * time.Second,
		webhookSecret: secret,
	})

	ctx := context.Background()

	if err := client.SeedStockItem(ctx, "gpu-load", 100, 1000); err != nil {
		t.Fatalf("SeedStockItem failed: %v", err)
	}

	orderID, totalMinor, code, err := client.CreateOrder(ctx, "user-1", "gpu-load", 1)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if orderID != "order-1" || totalMinor != 100 || code != "201" {
		t.Fatalf("unexpected create result: %s %d %s", orderID, totalMinor, code)
	}

	code, err = client.PayOrder(ctx, "order-1", "evt-1", 100)
	if err != nil {
		t.Fatalf("PayOrder failed: %v", err)
	}
	if code != "200" {
		t.Fatalf("unexpected pay code: %s", code)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payBody)
	if want := hex.EncodeToString(mac.Sum(nil)); paySignature != want {
		t.Fatalf("webhook signature mismatch: got %s want %s", paySignature, want)
	}
	var webhook struct {
		ID        string `json:"id"`
		EventType string `json:"eventType"`
		Amount    int64  `json:"amount"`
		Metadata  struct {
			OrderID string `json:"orderId"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(payBody, &webhook); err != nil {
		t.Fatalf("decode webhook body: %v", err)
	}
	if webhook.ID != "evt-1" || webhook.EventType != "payment_succeeded" || webhook.Amount != 100 || webhook.Metadata.OrderID != "order-1" {
		t.Fatalf("unexpected webhook body: %+v", webhook)
	}

	code, err = client.CancelOrder(ctx, "user-1", "order-1")
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if code != "200" {
		t.Fatalf("unexpected cancel code: %s", code)
	}
}

func TestPrintReport(t *testing.T) {
	r := report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			"scenario":    {Calls: 2, Success: 2},
			"CreateOrder": {Calls: 2, Success: 2},
		},
	}

	out := captureStdout(t, func() {
		printReport(r, config{mode: modeCreate, total: 2})
	})

	if !strings.Contains(out, "Load test summary") {
		t.Fatalf("expected summary header, got: %s", out)
	}
	if !strings.Contains(out, "CreateOrder") {
		t.Fatalf("expected method section, got: %s", out)
	}
}

func TestMainSmoke(t *testing.T) {
	var orders atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		id := orders.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-` + string(rune('0'+id%10)) + `","total_minor":100}`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "main-report.json")

	withCLIArgs(t, []string{
		"-addr=" + srv.URL,
		"-mode=create",
		"-total=5",
		"-concurrency=2",
		"-timeout=2s",
		"-output=" + outPath,
	}, func() {
		main()
	})

	if orders.Load() != 5 {
		t.Fatalf("expected 5 created orders, got %d", orders.Load())
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected report file from main: %v", err)
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = oldStdout

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	_ = r.Close()

	return string(data)
}
