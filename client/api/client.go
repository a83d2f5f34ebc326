// Package api is the HTTP client for the background-removal service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"idPhoto/client/apperrors"
	"idPhoto/client/dto"
	"idPhoto/client/middleware"
	"idPhoto/client/models"
)

const (
	DefaultAuthPath      = "/auth"
	DefaultMaxResultSize = 64 << 20
	maxErrorBody         = 64 << 10
)

type Config struct {
	BaseURL  string
	AuthPath string
	Timeout  time.Duration
	// MaxResultSize caps the result download in bytes.
	MaxResultSize int64
}

type Client struct {
	baseURL       string
	authPath      string
	maxResultSize int64
	http          *http.Client
	logger        *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	authPath := cfg.AuthPath
	if authPath == "" {
		authPath = DefaultAuthPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxResult := cfg.MaxResultSize
	if maxResult <= 0 {
		maxResult = DefaultMaxResultSize
	}

	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	transport = middleware.Logging(logger)(transport)
	transport = middleware.TraceID(transport)

	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authPath:      authPath,
		maxResultSize: maxResult,
		http:          &http.Client{Timeout: timeout, Transport: transport},
		logger:        logger,
	}
}

// Login exchanges the service identity for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (*dto.LoginResponse, error) {
	body, err := json.Marshal(dto.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.authPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp dto.LoginResponse
	if err := c.doJSON(req, "login", &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		msg := resp.Error
		if msg == "" {
			msg = "login response carried no access token"
		}
		return nil, apperrors.Transport(msg, http.StatusOK, nil)
	}
	return &resp, nil
}

// Submit uploads an image as multipart field "file". presetID selects a
// server-side removal preset; nil uses the server default.
func (c *Client) Submit(ctx context.Context, token, filename string, file io.Reader, presetID *int) (*dto.SubmitResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	endpoint := c.baseURL + "/background/remove"
	if presetID != nil {
		endpoint += "?" + url.Values{"config_id": {strconv.Itoa(*presetID)}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	setBearer(req, token)

	var resp dto.SubmitResponse
	if err := c.doJSON(req, "submit", &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		return nil, apperrors.Transport("submit response carried no task id", http.StatusOK, nil)
	}
	return &resp, nil
}

func (c *Client) Status(ctx context.Context, token, taskID string) (*models.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/background/status/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}
	setBearer(req, token)

	var resp dto.StatusResponse
	if err := c.doJSON(req, "status query", &resp); err != nil {
		return nil, err
	}
	if resp.TaskID == "" {
		resp.TaskID = taskID
	}
	return resp.ToTask(), nil
}

// Result downloads the processed cutout.
func (c *Client) Result(ctx context.Context, token, taskID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/background/result/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("create result request: %w", err)
	}
	setBearer(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transport("result fetch failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "result fetch")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResultSize+1))
	if err != nil {
		return nil, apperrors.Transport("read result body", resp.StatusCode, err)
	}
	if int64(len(data)) > c.maxResultSize {
		c.logger.Error("Result exceeds size limit",
			zap.String("task_id", taskID),
			zap.Int64("limit", c.maxResultSize),
		)
		return nil, apperrors.Transport(fmt.Sprintf("result larger than %d bytes", c.maxResultSize), resp.StatusCode, nil)
	}
	return data, nil
}

func (c *Client) ListPresets(ctx context.Context, token string) ([]models.RemovalPreset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/background-configs", nil)
	if err != nil {
		return nil, fmt.Errorf("create presets request: %w", err)
	}
	setBearer(req, token)

	var resp []dto.PresetResponse
	if err := c.doJSON(req, "list presets", &resp); err != nil {
		return nil, err
	}

	presets := make([]models.RemovalPreset, 0, len(resp))
	for i := range resp {
		presets = append(presets, resp[i].ToModel())
	}
	return presets, nil
}

func (c *Client) GetPreset(ctx context.Context, token string, id int) (*models.RemovalPreset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/background-configs/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create preset request: %w", err)
	}
	setBearer(req, token)

	var resp dto.PresetResponse
	if err := c.doJSON(req, "get preset", &resp); err != nil {
		return nil, err
	}
	preset := resp.ToModel()
	return &preset, nil
}

func (c *Client) doJSON(req *http.Request, op string, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Transport(op+" failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, op)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transport("decode "+op+" response", resp.StatusCode, err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, op string) error {
	message := fmt.Sprintf("%s returned status %d", op, resp.StatusCode)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var errResp dto.ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Text() != "" {
		message = errResp.Text()
	}

	c.logger.Warn("API call rejected",
		zap.String("trace_id", middleware.GetTraceID(resp.Request.Context())),
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.String("message", message),
	)

	return apperrors.Transport(message, resp.StatusCode, nil)
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
