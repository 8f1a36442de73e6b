// Command perfalert measures alert latency end to end: it injects test events
// through the debug API while acting as the overlay on the websocket, timing
// each injection until its tts_ready arrives and acking it like a finished
// playback. The target server must run with server.debug enabled.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crierhq/crier/internal/event"
	"github.com/crierhq/crier/internal/protocol"
)

type options struct {
	baseURL         string
	alerts          int
	kinds           []string
	interAlertDelay time.Duration
	alertTimeout    time.Duration
	fetchAudio      bool
	verbose         bool
}

type injectRequest struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type injectResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	EventType string `json:"event_type"`
}

type wsEnvelope struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	AudioID string `json:"audio_id,omitempty"`
	Text    string `json:"text,omitempty"`
}

type alertReady struct {
	id      string
	audioID string
	text    string
}

type sample struct {
	kind    string
	latency time.Duration
	bytes   int
}

// defaultKinds alternates platforms so neither rate limiter gates the run.
var defaultKinds = []string{
	"twitch_bits",
	"youtube_superchat",
	"twitch_sub_new",
	"youtube_membership_new",
	"twitch_gift_multi",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfalert: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfalert: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var kindsRaw string
	var interAlertMS int
	var alertTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "Crier base URL")
	flag.IntVar(&cfg.alerts, "alerts", 10, "number of test alerts to inject")
	flag.StringVar(&kindsRaw, "kinds", "", "event kinds separated by ',' (optional)")
	flag.IntVar(&interAlertMS, "inter-alert-ms", 250, "delay between alerts in milliseconds")
	flag.IntVar(&alertTimeoutMS, "alert-timeout-ms", 15000, "timeout waiting for tts_ready per alert in milliseconds")
	flag.BoolVar(&cfg.fetchAudio, "fetch-audio", true, "download each artifact like the overlay would")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print per-alert progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.alerts <= 0 {
		return options{}, fmt.Errorf("alerts must be > 0")
	}
	if interAlertMS < 0 {
		interAlertMS = 0
	}
	if alertTimeoutMS < 1000 {
		alertTimeoutMS = 1000
	}
	cfg.interAlertDelay = time.Duration(interAlertMS) * time.Millisecond
	cfg.alertTimeout = time.Duration(alertTimeoutMS) * time.Millisecond

	kinds, err := parseKinds(kindsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.kinds = kinds
	return cfg, nil
}

func parseKinds(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultKinds...), nil
	}
	known := make(map[string]bool, len(event.Kinds()))
	for _, k := range event.Kinds() {
		known[string(k)] = true
	}
	var kinds []string
	for _, part := range strings.Split(raw, ",") {
		k := strings.TrimSpace(part)
		if k == "" {
			continue
		}
		if !known[k] {
			return nil, fmt.Errorf("unknown event kind %q", k)
		}
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("kinds produced no non-empty entries")
	}
	return kinds, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 45 * time.Second}

	wsURL, err := wsURLFromBase(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	readyCh := make(chan alertReady, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, readyCh, readErrCh, cfg.verbose)

	if err := conn.WriteJSON(protocol.ClientReady{Type: protocol.TypeClientReady}); err != nil {
		return fmt.Errorf("send ready: %w", err)
	}

	if cfg.verbose {
		fmt.Printf("perfalert: target=%s alerts=%d kinds=%s\n", cfg.baseURL, cfg.alerts, strings.Join(cfg.kinds, ","))
	}

	samples := make([]sample, 0, cfg.alerts)
	for i := 0; i < cfg.alerts; i++ {
		select {
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		default:
		}

		kind := cfg.kinds[i%len(cfg.kinds)]
		// Unique usernames keep the duplicate detector out of the way.
		username := fmt.Sprintf("PerfAlert%02d", i+1)

		start := time.Now()
		if err := injectAlert(ctx, httpClient, cfg.baseURL, kind, username); err != nil {
			return fmt.Errorf("alert %d inject: %w", i+1, err)
		}
		ready, err := awaitReady(readyCh, readErrCh, cfg.alertTimeout)
		if err != nil {
			return fmt.Errorf("alert %d await tts_ready: %w", i+1, err)
		}
		latency := time.Since(start)

		audioBytes := 0
		if cfg.fetchAudio {
			audioBytes, err = fetchAudio(ctx, httpClient, cfg.baseURL, ready.audioID)
			if err != nil {
				return fmt.Errorf("alert %d fetch audio: %w", i+1, err)
			}
		}
		if err := conn.WriteJSON(protocol.PlayComplete{Type: protocol.TypePlayComplete, ID: ready.id}); err != nil {
			return fmt.Errorf("alert %d send play_complete: %w", i+1, err)
		}

		samples = append(samples, sample{kind: kind, latency: latency, bytes: audioBytes})
		if cfg.verbose {
			fmt.Printf("perfalert: alert %d/%d kind=%s latency=%s audio_bytes=%d text=%q\n", i+1, cfg.alerts, kind, latency.Round(time.Millisecond), audioBytes, ready.text)
		}
		if cfg.interAlertDelay > 0 && i < cfg.alerts-1 {
			time.Sleep(cfg.interAlertDelay)
		}
	}

	min, avg, max := summarize(samples)
	fmt.Printf("perfalert: %d alerts, tts_ready latency min=%s avg=%s max=%s\n",
		len(samples), min.Round(time.Millisecond), avg.Round(time.Millisecond), max.Round(time.Millisecond))
	return nil
}

func injectAlert(ctx context.Context, client *http.Client, baseURL, kind, username string) error {
	payload, err := json.Marshal(injectRequest{Type: kind, Username: username})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/test", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("debug API disabled on the server (set server.debug or CRIER_DEBUG)")
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out injectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return fmt.Errorf("event rejected (status=%s); check alert thresholds and rate limits", out.Status)
	}
	return nil
}

func fetchAudio(ctx context.Context, client *http.Client, baseURL, audioID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/audio/"+url.PathEscape(audioID), nil)
	if err != nil {
		return 0, err
	}
	res, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return 0, err
	}
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("audio %q HTTP %d", audioID, res.StatusCode)
	}
	return len(body), nil
}

func wsURLFromBase(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, readyCh chan<- alertReady, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeTTSReady):
			select {
			case readyCh <- alertReady{id: env.ID, audioID: env.AudioID, text: env.Text}:
			default:
			}
		case string(protocol.TypeSkip):
			if verbose {
				fmt.Fprintln(os.Stderr, "perfalert: server skipped the playing alert")
			}
		}
	}
}

func awaitReady(readyCh <-chan alertReady, readErrCh <-chan error, timeout time.Duration) (alertReady, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ready := <-readyCh:
		return ready, nil
	case err := <-readErrCh:
		return alertReady{}, err
	case <-timer.C:
		return alertReady{}, fmt.Errorf("timeout after %s", timeout)
	}
}

func summarize(samples []sample) (min, avg, max time.Duration) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	min = samples[0].latency
	max = samples[0].latency
	var total time.Duration
	for _, s := range samples {
		if s.latency < min {
			min = s.latency
		}
		if s.latency > max {
			max = s.latency
		}
		total += s.latency
	}
	return min, total / time.Duration(len(samples)), max
}
