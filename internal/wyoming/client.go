// Package wyoming implements the client side of the Wyoming TTS protocol as
// spoken by Piper: events are framed as an ASCII byte length, a newline and a
// JSON body, optionally followed by a binary payload whose size the JSON
// advertises in payload_length.
package wyoming

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/crierhq/crier/internal/audio"
)

const (
	// DefaultTimeout bounds one whole synthesize exchange.
	DefaultTimeout = 30 * time.Second

	probeTimeout = 5 * time.Second

	// maxEventBytes guards the length prefix against a confused peer.
	maxEventBytes = 1 << 20
)

var ErrNoAudio = errors.New("wyoming: backend sent no audio")

// Config locates the TTS backend.
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Client is a Wyoming protocol client. One synthesize call opens one
// connection; the zero concurrency model keeps the framing trivial and
// matches how Piper serves requests.
type Client struct {
	addr    string
	timeout time.Duration
}

// New builds a client for the backend at cfg.Host:cfg.Port.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		timeout: timeout,
	}
}

// Addr returns the backend address the client dials.
func (c *Client) Addr() string { return c.addr }

type protocolEvent struct {
	Type          string          `json:"type"`
	Data          json.RawMessage `json:"data,omitempty"`
	PayloadLength int             `json:"payload_length,omitempty"`
}

type synthesizeData struct {
	Text  string     `json:"text"`
	Voice *voiceName `json:"voice,omitempty"`
}

type voiceName struct {
	Name string `json:"name"`
}

type chunkFormat struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

type errorData struct {
	Text string `json:"text"`
}

// Synthesize renders text with the named voice and returns complete WAV
// bytes. Raw PCM responses are wrapped in a WAV container using the format
// the backend advertises, defaulting to 22050 Hz mono.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("wyoming: connect %s: %w", c.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("wyoming: set deadline: %w", err)
		}
	}

	req := synthesizeData{Text: text}
	if voice != "" {
		req.Voice = &voiceName{Name: voice}
	}
	if err := writeEvent(conn, "synthesize", req); err != nil {
		return nil, fmt.Errorf("wyoming: send synthesize: %w", err)
	}

	r := bufio.NewReader(conn)
	var pcm bytes.Buffer
	rate, channels := audio.DefaultSampleRate, 1

	for {
		ev, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("wyoming: read event: %w", err)
		}

		switch ev.Type {
		case "audio-chunk":
			var format chunkFormat
			if len(ev.Data) > 0 {
				if err := json.Unmarshal(ev.Data, &format); err == nil && format.Rate > 0 {
					rate = format.Rate
					if format.Channels > 0 {
						channels = format.Channels
					}
				}
			}
			if ev.PayloadLength > 0 {
				if _, err := io.CopyN(&pcm, r, int64(ev.PayloadLength)); err != nil {
					return nil, fmt.Errorf("wyoming: read audio payload: %w", err)
				}
			}
		case "audio-stop":
			if pcm.Len() == 0 {
				return nil, ErrNoAudio
			}
			raw := pcm.Bytes()
			if audio.IsWAV(raw) {
				return raw, nil
			}
			return audio.EncodeWAVPCM16LE(raw, rate, channels)
		case "error":
			var data errorData
			if len(ev.Data) > 0 {
				_ = json.Unmarshal(ev.Data, &data)
			}
			if data.Text == "" {
				data.Text = "unknown error"
			}
			return nil, fmt.Errorf("wyoming: backend error: %s", data.Text)
		default:
			// audio-start and anything newer: drain the payload, if any, so
			// the framing stays aligned.
			if ev.PayloadLength > 0 {
				if _, err := io.CopyN(io.Discard, r, int64(ev.PayloadLength)); err != nil {
					return nil, fmt.Errorf("wyoming: skip %s payload: %w", ev.Type, err)
				}
			}
		}
	}
}

// Probe dials the backend to check reachability. It sends nothing.
func (c *Client) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("wyoming: probe %s: %w", c.addr, err)
	}
	return conn.Close()
}

func writeEvent(w io.Writer, eventType string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(protocolEvent{Type: eventType, Data: body})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%d\n", len(frame)); err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

func readEvent(r *bufio.Reader) (protocolEvent, error) {
	var ev protocolEvent

	line, err := r.ReadString('\n')
	if err != nil {
		return ev, err
	}
	length, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return ev, fmt.Errorf("bad length prefix %q", strings.TrimSpace(line))
	}
	if length <= 0 || length > maxEventBytes {
		return ev, fmt.Errorf("event length %d out of range", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return ev, err
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("bad event JSON: %w", err)
	}
	return ev, nil
}
