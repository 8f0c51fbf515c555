package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	cdrdomain "github.com/smallbiznis/cdrbill/internal/cdr/domain"
	"github.com/smallbiznis/cdrbill/internal/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	exportFormatJSON = "json"
	fileStatusReady  = 2
	maxErrorBody     = 512
)

// Client talks to the carrier CDR export API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	clock   clock.Clock
	timer   func() backoff.Timer
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimer replaces the timer used between poll attempts.
func WithTimer(factory func() backoff.Timer) Option {
	return func(c *Client) {
		c.timer = factory
	}
}

func NewClient(cfg Config, clk clock.Clock, log *zap.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter: rate.NewLimiter(limit, 1),
		clock:   clk,
		log:     log.Named("carrier.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is an authenticated carrier session.
type Session struct {
	client *Client
	token  string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges the configured credentials for an API token.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	if strings.TrimSpace(c.cfg.Username) == "" || c.cfg.Password == "" {
		return nil, ErrMissingCredentials
	}

	var out loginResponse
	err := c.doJSON(ctx, PhaseLogin, http.MethodPost, c.cfg.LoginURL, "", loginRequest{
		Username: c.cfg.Username,
		Password: c.cfg.Password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, malformed(PhaseLogin, "missing token")
	}
	return &Session{client: c, token: out.Token}, nil
}

type exportRequest struct {
	StartDate    string `json:"start_date"`
	StopDate     string `json:"stop_date"`
	ExportFormat string `json:"export_format"`
}

type exportResponse struct {
	FileReference string `json:"file_reference"`
}

// RequestExport asks the carrier to build a JSON export for [start, stop).
// Dates are YYYY-MM-DD.
func (s *Session) RequestExport(ctx context.Context, startDate, stopDate string) (string, error) {
	var out exportResponse
	err := s.client.doJSON(ctx, PhaseExport, http.MethodPost, s.client.cfg.CDRURL, s.token, exportRequest{
		StartDate:    startDate,
		StopDate:     stopDate,
		ExportFormat: exportFormatJSON,
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.FileReference) == "" {
		return "", malformed(PhaseExport, "missing file_reference")
	}
	return out.FileReference, nil
}

// Export is one entry of the carrier's export list.
type Export struct {
	FileReference string `json:"file_reference"`
	FileStatus    int    `json:"file_status"`
	DownloadLink  string `json:"download_link"`
}

func (e Export) Ready() bool {
	return e.FileStatus == fileStatusReady && e.DownloadLink != ""
}

var errExportPending = errors.New("export pending")

// WaitReady polls the export list until ref is ready, or fails with
// ErrExportTimeout once the policy's timeout has elapsed.
func (s *Session) WaitReady(ctx context.Context, ref string, policy PollPolicy) (Export, error) {
	policy = policy.withDefaults()
	b := &linearBackOff{policy: policy, clock: s.client.clock}

	var (
		ready    Export
		attempts int
	)
	op := func() error {
		attempts++
		var list []Export
		if err := s.client.doJSON(ctx, PhasePoll, http.MethodGet, s.client.cfg.CDRURL, s.token, nil, &list); err != nil {
			return backoff.Permanent(err)
		}
		for _, e := range list {
			if e.FileReference == ref && e.Ready() {
				ready = e
				return nil
			}
		}
		return errExportPending
	}
	notify := func(_ error, wait time.Duration) {
		s.client.log.Debug("carrier.export.pending",
			zap.String("file_reference", ref),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
		)
	}

	var timer backoff.Timer
	if s.client.timer != nil {
		timer = s.client.timer()
	}
	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), notify, timer)
	if errors.Is(err, errExportPending) {
		return Export{}, fmt.Errorf("%w: %s not ready after %d attempts", ErrExportTimeout, ref, attempts)
	}
	if err != nil {
		return Export{}, err
	}
	return ready, nil
}

// DownloadURL resolves a download link against the carrier base URL.
func (s *Session) DownloadURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return s.client.cfg.BaseURL + link
}

// Download streams the export's JSON array and calls fn for each record in
// order. It returns the number of records decoded.
func (s *Session) Download(ctx context.Context, link string, fn func(cdrdomain.Record) error) (int64, error) {
	resp, err := s.client.do(ctx, PhaseDownload, http.MethodGet, s.DownloadURL(link), s.token, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	tok, err := dec.Token()
	if err != nil {
		return 0, malformed(PhaseDownload, "read array start: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, malformed(PhaseDownload, "expected array, got %v", tok)
	}

	var n int64
	for dec.More() {
		var rec cdrdomain.Record
		if err := dec.Decode(&rec); err != nil {
			return n, malformed(PhaseDownload, "record %d: %v", n, err)
		}
		n++
		if err := fn(rec); err != nil {
			return n, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return n, malformed(PhaseDownload, "read array end: %v", err)
	}
	return n, nil
}

// DID is a carrier phone number assignment.
type DID struct {
	ID          string `json:"id"`
	DID         string `json:"did"`
	Customer    string `json:"customer"`
	Description string `json:"description"`
}

// ListDIDs returns every DID on the account.
func (s *Session) ListDIDs(ctx context.Context) ([]DID, error) {
	var out []DID
	if err := s.client.doJSON(ctx, PhaseDIDs, http.MethodGet, s.client.cfg.DIDURL, s.token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, phase Phase, method, url, token string, body, out any) error {
	resp, err := c.do(ctx, phase, method, url, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed(phase, "decode response: %v", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, phase Phase, method, url, token string, body any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &ProtocolError{Phase: phase, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ProtocolError{Phase: phase, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProtocolError{
			Phase:      phase,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	return resp, nil
}
