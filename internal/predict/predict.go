package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoPrediction is returned when the backend answers without any candidates
var ErrNoPrediction = errors.New("backend returned no predictions")

// Candidate is one ranked speaker guess
type Candidate struct {
	SpeakerID   string  `json:"speaker_id"`
	SpeakerName string  `json:"speaker_name"`
	Confidence  float64 `json:"confidence"`
}

// Result is the decoded /predict response
type Result struct {
	Filename    string `json:"filename"`
	FeatureType string `json:"feature_type"`
	Prediction  struct {
		ModelUsed   string      `json:"model_used"`
		Predictions []Candidate `json:"predictions"`
	} `json:"prediction"`
}

// Top returns the highest ranked candidate
func (r Result) Top() (Candidate, bool) {
	if len(r.Prediction.Predictions) == 0 {
		return Candidate{}, false
	}
	return r.Prediction.Predictions[0], true
}

// Summary renders the top candidate for display, e.g. "alice (92.5%)"
func (r Result) Summary() string {
	top, ok := r.Top()
	if !ok {
		return "no match"
	}
	name := top.SpeakerName
	if name == "" {
		name = top.SpeakerID
	}
	return fmt.Sprintf("%s (%.1f%%)", name, top.Confidence*100)
}

// Health is the decoded /health response
type Health struct {
	Status            string   `json:"status"`
	Message           string   `json:"message"`
	LoadedModels      int      `json:"loaded_models"`
	SpeakerCount      int      `json:"speaker_count"`
	BestModel         *string  `json:"best_model"`
	BestModelAccuracy *float64 `json:"best_model_accuracy"`
}

type Options struct {
	BaseURL     string
	FeatureType string
	TopK        int
	Timeout     time.Duration
	HTTPClient  *http.Client // optional
	Logger      zerolog.Logger
}

// Client talks to the speaker prediction backend
type Client struct {
	base        *url.URL
	featureType string
	topK        atomic.Int32
	http        *http.Client
	log         zerolog.Logger
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid predictor url %q", opts.BaseURL)
	}

	if opts.FeatureType == "" {
		opts.FeatureType = "mfcc"
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		base:        base,
		featureType: opts.FeatureType,
		http:        hc,
		log:         opts.Logger,
	}
	c.topK.Store(int32(opts.TopK))
	return c, nil
}

func (c *Client) TopK() int {
	return int(c.topK.Load())
}

// SetTopK changes how many candidates later requests ask for
func (c *Client) SetTopK(k int) {
	if k > 0 {
		c.topK.Store(int32(k))
	}
}

// Predict uploads a WAV recording and returns the ranked speakers
func (c *Client) Predict(ctx context.Context, wav []byte, filename string) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio_file", filename)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return Result{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("failed to build upload: %w", err)
	}

	u := c.endpoint("predict")
	q := u.Query()
	q.Set("feature_type", c.featureType)
	q.Set("top_k", strconv.Itoa(int(c.topK.Load())))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	var result Result
	if err := c.do(req, &result); err != nil {
		return Result{}, fmt.Errorf("prediction failed: %w", err)
	}
	if len(result.Prediction.Predictions) == 0 {
		return result, ErrNoPrediction
	}

	c.log.Debug().
		Str("file", filename).
		Int("bytes", len(wav)).
		Str("model", result.Prediction.ModelUsed).
		Dur("took", time.Since(start)).
		Msg("Prediction received")
	return result, nil
}

// Health reports whether the backend is up and how many models it has loaded
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("health").String(), nil)
	if err != nil {
		return Health{}, err
	}

	var h Health
	if err := c.do(req, &h); err != nil {
		return Health{}, fmt.Errorf("health check failed: %w", err)
	}
	return h, nil
}

func (c *Client) endpoint(path string) *url.URL {
	return c.base.JoinPath(path)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError prefers the backend's "detail" message over the bare status
func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, s)
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, b)
		}
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
