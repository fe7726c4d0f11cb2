// Command load replays signed Wise webhook deliveries against a running
// gateway at a fixed rate and prints a latency summary.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/nimasrn/studio-gateway/internal/wise"
	"github.com/valyala/fasthttp"
)

type loadConfig struct {
	URL             string `env:"TARGET_URL,default=http://localhost:8080/api/webhooks/wise"`
	Rate            int    `env:"REQUESTS_PER_SECOND,default=500"`
	Duration        int    `env:"DURATION_SECONDS,default=30"`
	Workers         int    `env:"CONCURRENT_WORKERS,default=100"`
	Secret          string `env:"WISE_WEBHOOK_SECRET"`
	SignatureHeader string `env:"WISE_SIGNATURE_HEADER,default=X-Signature-SHA256"`
	Transfers       string `env:"TRANSFER_IDS,default=1001 1002 1003"`
}

func (c loadConfig) transferIDs() []string {
	return strings.FieldsFunc(c.Transfers, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

type delivery struct {
	body      []byte
	signature string
}

// buildDeliveries signs one state change per transfer and state. Replaying
// them exercises the reconciler's redelivery path after the first round.
func buildDeliveries(cfg loadConfig) []delivery {
	verifier := wise.NewVerifier(cfg.Secret)
	states := []wise.TransferState{wise.StateProcessing, wise.StateFundsConverted, wise.StateOutgoingPaymentSent}
	var out []delivery
	for _, id := range cfg.transferIDs() {
		for _, st := range states {
			body := []byte(fmt.Sprintf(`{"event_type":%q,"data":{"resource":{"type":"transfer","id":%q},"current_state":%q}}`,
				wise.EventTransferStateChange, id, st))
			out = append(out, delivery{body: body, signature: verifier.Sign(body)})
		}
	}
	return out
}

// recorder collects latencies and response codes. Code 0 counts transport errors.
type recorder struct {
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int
}

func newRecorder() *recorder {
	return &recorder{codes: make(map[int]int)}
}

func (r *recorder) record(code int, d time.Duration) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.codes[code]++
	r.mu.Unlock()
}

func (r *recorder) counts() (ok, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, n := range r.codes {
		if code == fasthttp.StatusOK {
			ok += n
		} else {
			failed += n
		}
	}
	return ok, failed
}

type summary struct {
	total         int
	min, max, avg time.Duration
	p50, p95, p99 time.Duration
	codes         map[int]int
}

func (r *recorder) summarize() summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := summary{total: len(r.latencies), codes: make(map[int]int, len(r.codes))}
	for k, v := range r.codes {
		s.codes[k] = v
	}
	if s.total == 0 {
		return s
	}

	sorted := append([]time.Duration(nil), r.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	s.min, s.max = sorted[0], sorted[len(sorted)-1]
	s.avg = sum / time.Duration(len(sorted))
	s.p50 = percentile(sorted, 0.50)
	s.p95 = percentile(sorted, 0.95)
	s.p99 = percentile(sorted, 0.99)
	return s
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * p)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

func send(client *fasthttp.Client, cfg loadConfig, d delivery, rec *recorder) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(cfg.SignatureHeader, d.signature)
	req.SetBodyRaw(d.body)

	start := time.Now()
	if err := client.DoTimeout(req, resp, 30*time.Second); err != nil {
		rec.record(0, time.Since(start))
		return
	}
	rec.record(resp.StatusCode(), time.Since(start))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func main() {
	var cfg loadConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	if cfg.Secret == "" {
		fmt.Fprintln(os.Stderr, "WISE_WEBHOOK_SECRET is required")
		os.Exit(1)
	}

	deliveries := buildDeliveries(cfg)
	if len(deliveries) == 0 {
		fmt.Fprintln(os.Stderr, "TRANSFER_IDS is empty")
		os.Exit(1)
	}
	total := cfg.Rate * cfg.Duration

	fmt.Printf("target %s: %d rps for %ds over %d workers, %d signed bodies for %d transfers\n",
		cfg.URL, cfg.Rate, cfg.Duration, cfg.Workers, len(deliveries), len(cfg.transferIDs()))

	client := &fasthttp.Client{
		MaxConnsPerHost:     cfg.Workers,
		MaxIdleConnDuration: 90 * time.Second,
	}
	rec := newRecorder()
	jobs := make(chan delivery, cfg.Rate)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				send(client, cfg, d, rec)
			}
		}()
	}

	start := time.Now()
	ticker := time.NewTicker(time.Second)
	sent := 0
	for second := 1; second <= cfg.Duration; second++ {
		for j := 0; j < cfg.Rate && sent < total; j++ {
			jobs <- deliveries[sent%len(deliveries)]
			sent++
		}
		ok, failed := rec.counts()
		fmt.Printf("[%3ds] done=%d ok=%d failed=%d\n", second, ok+failed, ok, failed)
		<-ticker.C
	}
	ticker.Stop()
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	s := rec.summarize()
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("requests  %d in %.1fs (%.1f rps)\n", s.total, elapsed.Seconds(), float64(s.total)/elapsed.Seconds())

	codes := make([]int, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		label := fmt.Sprint(c)
		if c == 0 {
			label = "err"
		}
		fmt.Printf("  %-4s %d\n", label, s.codes[c])
	}
	fmt.Printf("latency ms  avg=%.2f p50=%.2f p95=%.2f p99=%.2f min=%.2f max=%.2f\n",
		ms(s.avg), ms(s.p50), ms(s.p95), ms(s.p99), ms(s.min), ms(s.max))
}
