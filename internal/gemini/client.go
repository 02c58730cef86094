package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Static errors for Gemini client operations.
var (
	// ErrAPIKeyRequired is returned when no API key is provided.
	ErrAPIKeyRequired = errors.New("gemini: API key is required")
	// ErrFileNameRequired is returned when a file resource name is empty.
	ErrFileNameRequired = errors.New("gemini: file name is required")
	// ErrNoUploadURL is returned when the resumable start response has no upload URL.
	ErrNoUploadURL = errors.New("gemini: upload start returned no upload URL")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("gemini: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("gemini: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("gemini: request failed")
	// ErrBlocked is returned when the prompt was blocked by safety filters.
	ErrBlocked = errors.New("gemini: prompt blocked")
	// ErrNoCandidates is returned when a generation returns no candidates.
	ErrNoCandidates = errors.New("gemini: no candidates returned")
	// ErrRequestTimeout is returned when a single request exceeds its time limit.
	ErrRequestTimeout = errors.New("gemini: request timed out")
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"

	// DefaultTransferTimeout bounds a file upload or a generateContent call.
	DefaultTransferTimeout = 10 * time.Minute
	// DefaultMetadataTimeout bounds the small JSON calls.
	DefaultMetadataTimeout = 30 * time.Second
)

// callLimits describes how long one attempt may take and whether an attempt
// that ran out of time is retried.
type callLimits struct {
	timeout        time.Duration
	retryOnTimeout bool
}

// Client defines the Gemini operations used by the segment analyzer.
type Client interface {
	// UploadFile uploads a local file to the Files API.
	UploadFile(ctx context.Context, path, mimeType string) (*File, error)

	// GetFile returns the current metadata of an uploaded file.
	GetFile(ctx context.Context, name string) (*File, error)

	// DeleteFile removes an uploaded file.
	DeleteFile(ctx context.Context, name string) error

	// GenerateJSON prompts the model with file and prompt and returns the
	// concatenated text of the first candidate, requested as JSON.
	GenerateJSON(ctx context.Context, file *File, prompt string) (string, error)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// HTTPClient is the REST implementation of Client.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration

	transferTimeout time.Duration
	metadataTimeout time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(u, "/")
	}
}

// WithModel sets the model used for generation.
func WithModel(model string) ClientOption {
	return func(hc *HTTPClient) {
		if model != "" {
			hc.model = model
		}
	}
}

// WithRequestTimeout bounds each upload and generateContent attempt.
// Zero or negative leaves the default.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		if d > 0 {
			hc.transferTimeout = d
		}
	}
}

// WithMetadataTimeout bounds each upload-start, file lookup and delete attempt.
func WithMetadataTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		if d > 0 {
			hc.metadataTimeout = d
		}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		if n >= 0 {
			hc.maxRetries = n
		}
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		if d > 0 {
			hc.baseBackoff = d
		}
	}
}

// NewClient creates a new Gemini HTTP client.
func NewClient(apiKey string, opts ...ClientOption) (*HTTPClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &HTTPClient{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		httpClient:  &http.Client{},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,

		transferTimeout: DefaultTransferTimeout,
		metadataTimeout: DefaultMetadataTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *HTTPClient) Model() string {
	return c.model
}

func (c *HTTPClient) metadataCall() callLimits {
	return callLimits{timeout: c.metadataTimeout, retryOnTimeout: true}
}

func (c *HTTPClient) transferCall() callLimits {
	return callLimits{timeout: c.transferTimeout}
}

// UploadFile uploads a local file with the resumable upload protocol:
// a metadata request that returns an upload URL, then a single
// upload-and-finalize request carrying the bytes.
func (c *HTTPClient) UploadFile(ctx context.Context, path, mimeType string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("gemini: stat upload file: %w", err)
	}

	meta, err := json.Marshal(uploadStartRequest{File: uploadFileMetadata{DisplayName: filepath.Base(path)}})
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal upload metadata: %w", err)
	}

	startHeaders := http.Header{}
	startHeaders.Set("Content-Type", "application/json")
	startHeaders.Set("X-Goog-Upload-Protocol", "resumable")
	startHeaders.Set("X-Goog-Upload-Command", "start")
	startHeaders.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(info.Size(), 10))
	startHeaders.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	var uploadURL string
	err = c.doWithRetry(ctx, c.metadataCall(), func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, c.baseURL+"/upload/v1beta/files", startHeaders, bytes.NewReader(meta))
	}, func(resp *http.Response, _ []byte) error {
		uploadURL = resp.Header.Get("X-Goog-Upload-URL")
		return nil
	})
	if err != nil {
		return nil, err
	}
	if uploadURL == "" {
		return nil, ErrNoUploadURL
	}

	uploadHeaders := http.Header{}
	uploadHeaders.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	uploadHeaders.Set("X-Goog-Upload-Offset", "0")
	uploadHeaders.Set("X-Goog-Upload-Command", "upload, finalize")

	var out uploadResponse
	err = c.doWithRetry(ctx, c.transferCall(), func(ctx context.Context) (*http.Request, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("gemini: open upload file: %w", err)
		}
		req, err := c.newRequest(ctx, http.MethodPost, uploadURL, uploadHeaders, f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		req.ContentLength = info.Size()
		return req, nil
	}, decodeInto(&out))
	if err != nil {
		return nil, err
	}
	return &out.File, nil
}

// GetFile returns the metadata of an uploaded file.
func (c *HTTPClient) GetFile(ctx context.Context, name string) (*File, error) {
	if name == "" {
		return nil, ErrFileNameRequired
	}
	var f File
	err := c.doWithRetry(ctx, c.metadataCall(), func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, c.baseURL+"/v1beta/"+name, nil, nil)
	}, decodeInto(&f))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFile removes an uploaded file.
func (c *HTTPClient) DeleteFile(ctx context.Context, name string) error {
	if name == "" {
		return ErrFileNameRequired
	}
	return c.doWithRetry(ctx, c.metadataCall(), func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodDelete, c.baseURL+"/v1beta/"+name, nil, nil)
	}, nil)
}

// GenerateJSON runs generateContent with the file and prompt as one user turn.
func (c *HTTPClient) GenerateJSON(ctx context.Context, file *File, prompt string) (string, error) {
	if file == nil || file.URI == "" {
		return "", ErrFileNameRequired
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{FileData: &fileData{MIMEType: file.MIMEType, FileURI: file.URI}},
				{Text: prompt},
			},
		}},
		GenerationConfig: &generationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	var resp generateResponse
	err = c.doWithRetry(ctx, c.transferCall(), func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, url, headers, bytes.NewReader(body))
	}, decodeInto(&resp))
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
		}
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, url string, headers http.Header, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

// decodeInto returns a response handler that unmarshals the body into v.
func decodeInto(v any) func(*http.Response, []byte) error {
	return func(_ *http.Response, body []byte) error {
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("gemini: unmarshal response: %w", err)
		}
		return nil
	}
}

// doWithRetry performs a request with exponential backoff retry.
// newReq is called for every attempt, with that attempt's context, so
// request bodies can be re-opened.
func (c *HTTPClient) doWithRetry(
	ctx context.Context,
	limits callLimits,
	newReq func(context.Context) (*http.Request, error),
	handle func(*http.Response, []byte) error,
) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("gemini: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.do(ctx, limits.timeout, newReq, handle)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRequestTimeout) && !limits.retryOnTimeout {
			return err
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("gemini: max retries exceeded: %w", lastErr)
}

// do performs a single HTTP request bounded by timeout. The response body
// is read under the same deadline.
func (c *HTTPClient) do(
	ctx context.Context,
	timeout time.Duration,
	newReq func(context.Context) (*http.Request, error),
	handle func(*http.Response, []byte) error,
) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := newReq(attemptCtx)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, attemptCtx, timeout, fmt.Errorf("gemini: request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, attemptCtx, timeout, fmt.Errorf("gemini: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if handle != nil {
		return handle(resp, respBody)
	}
	return nil
}

// transportError classifies a failed exchange: caller cancellation, the
// attempt's own deadline, or a transient network failure.
func transportError(ctx, attemptCtx context.Context, timeout time.Duration, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("gemini: request cancelled: %w", ctx.Err())
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &retryableError{err: fmt.Errorf("%w after %s: %w", ErrRequestTimeout, timeout, err)}
	}
	return &retryableError{err: err}
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
