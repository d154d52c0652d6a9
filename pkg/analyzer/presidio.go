package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// PresidioName is the registry name of the Presidio HTTP back end.
const PresidioName = "presidio"

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 512

// Presidio errors.
var (
	ErrNoEndpoint     = errors.New("presidio endpoint not configured")
	ErrRecordRejected = errors.New("presidio rejected record")
)

var presidioJSON = jsoniter.ConfigCompatibleWithStandardLibrary

type presidioRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type presidioResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Presidio calls a Presidio Analyzer service once per record. A record the
// service rejects is skipped; a transport failure fails the batch.
type Presidio struct {
	client   *http.Client
	endpoint string
	language string
	logger   *slog.Logger
}

// NewPresidio creates a client for the service at opts.Endpoint.
func NewPresidio(opts Options) (*Presidio, error) {
	if opts.Endpoint == "" {
		return nil, ErrNoEndpoint
	}

	base, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse presidio endpoint: %w", err)
	}

	opts = opts.withDefaults()

	return &Presidio{
		client:   &http.Client{Timeout: opts.Timeout, Transport: http.DefaultTransport.(*http.Transport).Clone()},
		endpoint: base.JoinPath("analyze").String(),
		language: opts.Language,
		logger:   opts.Logger,
	}, nil
}

// Name implements Analyzer.
func (p *Presidio) Name() string {
	return PresidioName
}

// Analyze implements Analyzer.
func (p *Presidio) Analyze(ctx context.Context, texts []string) ([][]Detection, error) {
	out := make([][]Detection, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}

		detections, err := p.analyzeOne(ctx, text)
		if errors.Is(err, ErrRecordRejected) {
			p.logger.Debug("presidio skipped record", "index", i, "error", err)

			continue
		}

		if err != nil {
			return nil, err
		}

		out[i] = detections
	}

	return out, nil
}

// Close releases idle connections.
func (p *Presidio) Close() error {
	p.client.CloseIdleConnections()

	return nil
}

func (p *Presidio) analyzeOne(ctx context.Context, text string) ([]Detection, error) {
	body, err := presidioJSON.Marshal(presidioRequest{Text: text, Language: p.language})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrRecordRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build presidio request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presidio request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("presidio status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRecordRejected, resp.StatusCode, readSnippet(resp.Body))
	}

	var results []presidioResult

	err = presidioJSON.NewDecoder(resp.Body).Decode(&results)
	if err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrRecordRejected, err)
	}

	detections := make([]Detection, len(results))
	for i, r := range results {
		detections[i] = Detection{Label: r.EntityType, Start: r.Start, End: r.End, Score: r.Score}
	}

	return detections, nil
}

func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))

	return strings.TrimSpace(string(data))
}
