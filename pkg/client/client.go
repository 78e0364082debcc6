// Package client wisefido-ledger HTTP API 客户端
// 只对 503（模拟网关故障）自动重试，校验失败直接返回给调用方
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wisefido-ledger/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ValidationError 任务准入被拒绝（修改输入后再提交）
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// TransientError 重试用尽后仍为 503
type TransientError struct {
	Message  string
	Attempts int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s (after %d attempts)", e.Message, e.Attempts)
}

// APIError 其他非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api error: %s (status: %d)", e.Message, e.StatusCode)
}

// Options 客户端选项
type Options struct {
	WorkerID     string        // 作为 X-User-Id 发送
	Timeout      time.Duration // 单次请求超时，需大于服务端故障注入延迟
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

func (o *Options) withDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.RetryCount <= 0 {
		o.RetryCount = 3
	}
	if o.RetryWait <= 0 {
		o.RetryWait = 1 * time.Second
	}
	if o.RetryMaxWait <= 0 {
		o.RetryMaxWait = 5 * time.Second
	}
}

// envelope 服务端统一响应包
type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Errors  []string        `json:"errors"`
}

// Client ledger API 客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// New 创建客户端
func New(baseURL string, opts Options, logger *zap.Logger) *Client {
	opts.withDefaults()

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		// 只有 503 表示可重试；每次重试服务端都会重新校验
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			return r != nil && r.StatusCode() == http.StatusServiceUnavailable
		}).
		AddRetryHook(func(r *resty.Response, _ error) {
			if r != nil {
				logger.Warn("Ledger API transient failure, retrying",
					zap.String("url", r.Request.URL),
					zap.Int("attempt", r.Request.Attempt),
				)
			}
		})
	if opts.WorkerID != "" {
		httpClient.SetHeader("X-User-Id", opts.WorkerID)
	}

	return &Client{httpClient: httpClient, logger: logger}
}

// AdmitTaskRequest 任务准入请求
type AdmitTaskRequest struct {
	WorkerID             string    `json:"workerId,omitempty"`
	ParticipantID        string    `json:"participantId"`
	TaskCode             string    `json:"taskCode"`
	WindowStart          time.Time `json:"windowStart"`
	WindowEnd            time.Time `json:"windowEnd"`
	RequiredPreviousTask string    `json:"requiredPreviousTask,omitempty"`
}

// AdmitTaskResult 准入成功结果
type AdmitTaskResult struct {
	EventID    string    `json:"eventId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// AdmitTask 提交任务执行；503 自动重试，400 返回 *ValidationError
func (c *Client) AdmitTask(ctx context.Context, req AdmitTaskRequest) (*AdmitTaskResult, error) {
	var out AdmitTaskResult
	if err := c.do(ctx, http.MethodPost, "/ledger/api/v1/tasks", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State 重建参与者状态；participantID 为空时由服务端选择最近的参与者
func (c *Client) State(ctx context.Context, participantID string) (*domain.ConditionSnapshot, error) {
	query := map[string]string{}
	if participantID != "" {
		query["participantId"] = participantID
	}
	var out domain.ConditionSnapshot
	if err := c.do(ctx, http.MethodGet, "/ledger/api/v1/state", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Replay 回放 [start, end] 内的事件（升序）
func (c *Client) Replay(ctx context.Context, participantID string, start, end time.Time) ([]*domain.Event, error) {
	query := map[string]string{
		"participantId": participantID,
		"start":         start.Format(time.RFC3339Nano),
		"end":           end.Format(time.RFC3339Nano),
	}
	var out struct {
		Events []*domain.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/ledger/api/v1/replay", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	var env envelope
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(&env).
		SetError(&env)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to call ledger api %s: %w", path, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusServiceUnavailable:
		msg := env.Message
		if len(env.Errors) > 0 {
			msg = env.Errors[0]
		}
		return &TransientError{Message: msg, Attempts: resp.Request.Attempt}
	case status == http.StatusBadRequest && len(env.Errors) > 0:
		return &ValidationError{Violations: env.Errors}
	case status >= 300:
		return &APIError{StatusCode: status, Message: env.Message}
	}

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode ledger api result: %w", err)
	}
	return nil
}
