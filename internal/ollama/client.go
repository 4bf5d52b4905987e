// Package ollama provides the HTTP client for the local AI engine and the
// readiness controller that keeps dependent calls from blocking on an
// engine that isn't running.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the engine endpoint when none is configured.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is used when no model tag is configured.
	DefaultModel = "moondream"

	// DefaultVisionModel is the fallback for image analysis when the
	// configured tag does not look vision-capable.
	DefaultVisionModel = "moondream"

	// probeTimeout bounds the reachability check.
	probeTimeout = 2 * time.Second

	// readyAttempts and readyInterval bound the post-launch poll loop.
	readyAttempts = 15
	readyInterval = time.Second

	// generateTimeout bounds a single generation call. Local models can
	// take tens of seconds on modest hardware.
	generateTimeout = 3 * time.Minute
)

// State tracks the readiness controller's view of the engine.
type State int

const (
	// StateUnknown means no probe has run yet.
	StateUnknown State = iota
	// StateProbing means a reachability check is in flight.
	StateProbing
	// StateStarting means the engine process was launched and is being polled.
	StateStarting
	// StateReady means the engine answered a probe.
	StateReady
	// StateUnavailable means the engine could not be reached or launched.
	StateUnavailable
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Client talks to a local Ollama-compatible engine.
//
// Generation calls are synchronous and may take tens of seconds; they must
// only be made from the analysis worker or an explicit report request,
// never from a watch notification goroutine.
type Client struct {
	baseURL  string
	httpc    *http.Client
	logger   *log.Logger
	launch   func() error
	attempts int
	interval time.Duration

	mu      sync.Mutex
	state   State
	startMu sync.Mutex
}

// NewClient creates a client for the engine at baseURL.
// An empty baseURL selects DefaultBaseURL; a nil logger discards output.
func NewClient(baseURL string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpc:    &http.Client{Timeout: generateTimeout},
		logger:   logger,
		launch:   launchServe,
		attempts: readyAttempts,
		interval: readyInterval,
		state:    StateUnknown,
	}
}

// launchServe starts the engine as a detached background process.
func launchServe() error {
	cmd := exec.Command("ollama", "serve")
	if err := cmd.Start(); err != nil {
		return err
	}
	// The engine outlives us; only reap the handle.
	go func() { _ = cmd.Wait() }()
	return nil
}

// State returns the controller's last observed engine state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// generateRequest is the engine's generation payload.
type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images,omitempty"`
}

// generateResponse is the subset of the engine's reply we consume.
type generateResponse struct {
	Response string `json:"response"`
}

// Generate performs one synchronous prompt/response cycle.
// Images, when present, are base64-encoded file contents for vision models.
func (c *Client) Generate(ctx context.Context, model, prompt string, images []string) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	payload, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Images: images,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode engine response: %w", err)
	}

	return strings.TrimSpace(out.Response), nil
}

// probe performs a short-timeout reachability check against the base endpoint.
func (c *Client) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// setState records a state transition; c.mu guards only the field, never
// a probe or the launch-and-poll loop.
func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// EnsureReady makes sure the engine is reachable before a dependent call.
//
// If the engine does not answer, it is launched as a background process
// (best effort) and polled on a fixed interval up to a bounded number of
// attempts. Only one caller performs the launch; a concurrent caller
// returns false immediately instead of queueing behind the poll loop.
// Callers must treat a false return as "skip this operation"; EnsureReady
// never blocks past the retry budget.
func (c *Client) EnsureReady(ctx context.Context) bool {
	c.setState(StateProbing)
	if c.probe(ctx) {
		c.setState(StateReady)
		return true
	}

	if !c.startMu.TryLock() {
		return false
	}
	defer c.startMu.Unlock()

	c.logger.Printf("AI engine is down, attempting automatic start")
	if err := c.launch(); err != nil {
		c.logger.Printf("failed to launch AI engine: %v", err)
		c.setState(StateUnavailable)
		return false
	}

	c.setState(StateStarting)
	for i := 0; i < c.attempts; i++ {
		select {
		case <-ctx.Done():
			c.setState(StateUnavailable)
			return false
		case <-time.After(c.interval):
		}
		if c.probe(ctx) {
			c.logger.Printf("AI engine started and ready")
			c.setState(StateReady)
			return true
		}
	}

	c.logger.Printf("AI engine did not become ready after %d attempts", c.attempts)
	c.setState(StateUnavailable)
	return false
}

// visionTags marks model tags that are known to accept image input.
var visionTags = []string{"vision", "llava", "bakllava", "moondream", "minicpm", "-vl", "qwen2-vl"}

// VisionModel picks the model for an image call: the explicit override if
// set, else the configured tag when it looks vision-capable, else the
// fixed default vision model.
func VisionModel(configured, override string) string {
	if override != "" {
		return override
	}
	tag := strings.ToLower(configured)
	for _, marker := range visionTags {
		if strings.Contains(tag, marker) {
			return configured
		}
	}
	return DefaultVisionModel
}
