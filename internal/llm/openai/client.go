package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	xerrors "MultiModel-Chat/internal/errors"
	"MultiModel-Chat/internal/llm"
	"MultiModel-Chat/pkg/logger"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// Config 描述适配器的公共参数，端点凭证随每次调用传入。
type Config struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client 通过 Chat Completions 接口调用兼容 OpenAI 协议的模型端点。
type Client struct {
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Named("llm")
	}
	return &Client{timeout: timeout, httpClient: httpClient, logger: log}
}

// Query 向指定端点发送一次非流式请求并返回去除首尾空白的回复文本。
func (c *Client) Query(ctx context.Context, endpoint llm.Endpoint, messages []llm.Message, sharedContext string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	baseURL := strings.TrimSpace(endpoint.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := sdk.NewClient(
		option.WithAPIKey(endpoint.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(endpoint.ModelID),
		Messages: buildMessages(llm.ProjectMessages(endpoint, messages, sharedContext)),
	}

	start := time.Now()
	resp, err := client.Chat.Completions.New(callCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("endpoint timed out", "endpoint", endpoint.Name, "timeout", c.timeout)
			return "", xerrors.Wrap(xerrors.CodeEndpointTimeout, err,
				fmt.Sprintf("Timeout while querying %s", endpoint.Name))
		}
		return "", endpointError(endpoint, err)
	}
	if len(resp.Choices) == 0 {
		return "", endpointError(endpoint, errors.New("response contains no choices"))
	}

	c.logger.Debug("endpoint answered",
		"endpoint", endpoint.Name,
		"model", endpoint.ModelID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func endpointError(endpoint llm.Endpoint, cause error) error {
	return xerrors.Wrap(xerrors.CodeEndpointError, cause,
		fmt.Sprintf("Error querying %s: %v", endpoint.Name, cause),
		xerrors.WithRetryable(retryableStatus(cause)))
}

// retryableStatus 判断端点返回的错误是否值得重试，鉴权失败、参数错误等 4xx 响应不可重试。
func retryableStatus(cause error) bool {
	var apiErr *sdk.Error
	if !errors.As(cause, &apiErr) {
		return true
	}
	switch {
	case apiErr.StatusCode == http.StatusRequestTimeout, apiErr.StatusCode == http.StatusTooManyRequests:
		return true
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return false
	}
	return true
}

func buildMessages(projected []llm.WireMessage) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(projected))
	for _, msg := range projected {
		var param sdk.ChatCompletionMessageParamUnion
		switch msg.Role {
		case llm.RoleSystem:
			param = sdk.SystemMessage(msg.Content)
			if msg.Name != "" {
				param.OfSystem.Name = sdk.String(msg.Name)
			}
		case llm.RoleAssistant:
			param = sdk.AssistantMessage(msg.Content)
			if msg.Name != "" {
				param.OfAssistant.Name = sdk.String(msg.Name)
			}
		default:
			param = sdk.UserMessage(msg.Content)
			if msg.Name != "" {
				param.OfUser.Name = sdk.String(msg.Name)
			}
		}
		out = append(out, param)
	}
	return out
}

var _ llm.Client = (*Client)(nil)
