package conversation

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	xerrors "MultiModel-Chat/internal/errors"
	"MultiModel-Chat/internal/executor"
	"MultiModel-Chat/internal/extract"
	"MultiModel-Chat/internal/llm"
	"MultiModel-Chat/internal/observability/metrics"
	"MultiModel-Chat/internal/transcript"
	"MultiModel-Chat/pkg/logger"
)

const (
	// DefaultMaxTurns 是未指定最大轮数时使用的值。
	DefaultMaxTurns = 5
	// DefaultCodeTimeout 是对话中代码块的执行超时。
	DefaultCodeTimeout = 30 * time.Second

	archiveTimeout = 5 * time.Second

	// customEndpointLabel 是请求自带端点在指标中的统一标签。
	customEndpointLabel = "custom"
)

// Request 描述一次多模型对话请求。
type Request struct {
	Messages     []llm.Message
	Endpoints    []llm.Endpoint
	AutoContinue bool
	MaxTurns     int
}

// Result 是一次对话的全部回复，按产生顺序排列。
type Result struct {
	RunID      string     `json:"run_id"`
	Responses  []Response `json:"responses"`
	Turns      int        `json:"turns"`
	StopReason StopReason `json:"stop_reason"`
}

// Orchestrator 负责按轮次调度各个端点。它本身无状态，可被多个请求并发使用。
type Orchestrator struct {
	client          llm.Client
	runner          executor.Runner
	defaults        []llm.Endpoint
	logger          *slog.Logger
	pacer           Pacer
	codeTimeout     time.Duration
	contextLimit    int
	defaultMaxTurns int
	archive         transcript.Store
	publisher       transcript.Publisher
	newID           func() string
	now             func() time.Time
}

// Option 定义可选的调度配置。
type Option func(*Orchestrator)

// WithLogger 设置日志记录器。
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPacer 设置端点调用节奏。
func WithPacer(p Pacer) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.pacer = p
		}
	}
}

// WithCodeTimeout 设置代码块的执行超时。
func WithCodeTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.codeTimeout = timeout
		}
	}
}

// WithContextLimit 限制共享上下文的字节数，0 表示不限制。
func WithContextLimit(limit int) Option {
	return func(o *Orchestrator) {
		o.contextLimit = limit
	}
}

// WithDefaultMaxTurns 覆盖请求未指定最大轮数时的默认值。
func WithDefaultMaxTurns(turns int) Option {
	return func(o *Orchestrator) {
		if turns > 0 {
			o.defaultMaxTurns = turns
		}
	}
}

// WithArchive 设置对话记录的归档存储。
func WithArchive(store transcript.Store) Option {
	return func(o *Orchestrator) {
		o.archive = store
	}
}

// WithPublisher 设置对话结束事件的发布器。
func WithPublisher(p transcript.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithIDGenerator 替换对话 ID 的生成方式。
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// New 创建调度器。defaults 是请求未携带端点时使用的端点列表。
func New(client llm.Client, runner executor.Runner, defaults []llm.Endpoint, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:          client,
		runner:          runner,
		defaults:        append([]llm.Endpoint(nil), defaults...),
		pacer:           FixedPacer{Delay: DefaultPacingDelay},
		codeTimeout:     DefaultCodeTimeout,
		defaultMaxTurns: DefaultMaxTurns,
		newID:           uuid.NewString,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Named("conversation")
	}
	return o
}

// DefaultEndpoints 返回默认端点列表的副本。
func (o *Orchestrator) DefaultEndpoints() []llm.Endpoint {
	return append([]llm.Endpoint(nil), o.defaults...)
}

// Run 执行一次完整的对话。只有在整个过程中没有任何端点给出回答时才返回错误。
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if o.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置模型客户端")
	}
	if len(req.Messages) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "messages must not be empty")
	}

	endpoints := req.Endpoints
	if len(endpoints) == 0 {
		endpoints = o.defaults
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = o.defaultMaxTurns
	}

	runID := o.newID()
	started := o.now()
	log := o.logger.With("run_id", runID)
	log.Info("conversation started",
		"endpoints", len(endpoints),
		"auto_continue", req.AutoContinue,
		"max_turns", maxTurns,
	)

	st := newState(req.Messages, o.contextLimit)
	reason := StopMaxTurns
	for st.turns < maxTurns {
		turn := o.runTurn(ctx, log, endpoints, st)
		st.commit(turn)
		log.Debug("turn completed", "turn", st.turns, "responses", len(turn))

		if !req.AutoContinue || !ShouldContinue(turn) {
			reason = StopNoContinuation
			break
		}
	}

	var runErr error
	if st.answered == 0 {
		reason = StopAllFailed
		runErr = xerrors.New(xerrors.CodeAllEndpointsFailed, "")
	}

	result := &Result{
		RunID:      runID,
		Responses:  st.responses,
		Turns:      st.turns,
		StopReason: reason,
	}
	duration := o.now().Sub(started)
	metrics.ObserveConversation(string(reason), st.turns)
	log.Info("conversation stopped",
		"stop_reason", reason,
		"turns", st.turns,
		"responses", len(st.responses),
		"duration_ms", duration.Milliseconds(),
	)

	o.persist(ctx, log, buildRecord(req, endpoints, maxTurns, result, runErr, started, duration))
	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// runTurn 依次询问每个端点，返回本轮产生的全部回复。
func (o *Orchestrator) runTurn(ctx context.Context, log *slog.Logger, endpoints []llm.Endpoint, st *state) []Response {
	responses := make([]Response, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if err := o.pacer.BeforeQuery(ctx, endpoint.Name); err != nil {
			log.Debug("pacing interrupted", "endpoint", endpoint.Name, "error", err)
		}

		text, err := o.query(ctx, log, endpoint, st)
		if err != nil {
			responses = append(responses, Response{
				Role:    llm.RoleAssistant,
				Name:    endpoint.Name + ErrorSuffix,
				Content: errorContent(err),
			})
			continue
		}

		st.answered++
		responses = append(responses, Response{Role: llm.RoleAssistant, Name: endpoint.Name, Content: text})

		for _, code := range extract.CodeBlocks(text) {
			output := o.runCode(ctx, code)
			responses = append(responses, Response{
				Role:    llm.RoleAssistant,
				Name:    endpoint.Name + CodeOutputSuffix,
				Content: "Code execution output:\n" + output,
			})
		}

		st.context.AppendStructured(endpoint.Name, extract.JSONBlocks(text))
		st.context.AppendResponse(endpoint.Name, text)

		if err := o.pacer.AfterAnswer(ctx, endpoint.Name); err != nil {
			log.Debug("pacing interrupted", "endpoint", endpoint.Name, "error", err)
		}
	}
	return responses
}

func (o *Orchestrator) query(ctx context.Context, log *slog.Logger, endpoint llm.Endpoint, st *state) (string, error) {
	start := time.Now()
	text, err := o.client.Query(ctx, endpoint, st.messages, st.context.String())
	duration := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if xerrors.CodeOf(err) == xerrors.CodeEndpointTimeout || stdErrors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		log.Warn("endpoint query failed",
			"endpoint", endpoint.Name,
			"outcome", outcome,
			"retryable", xerrors.RetryableError(err),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	}
	metrics.ObserveEndpointQuery(o.metricLabel(endpoint), outcome, duration)
	return text, err
}

// metricLabel 只为默认端点保留名称，避免请求中的任意名称产生无限多的指标序列。
func (o *Orchestrator) metricLabel(endpoint llm.Endpoint) string {
	for _, d := range o.defaults {
		if d.Name == endpoint.Name {
			return endpoint.Name
		}
	}
	return customEndpointLabel
}

func (o *Orchestrator) runCode(ctx context.Context, code string) string {
	if o.runner == nil {
		return "Error executing code:\ncode runner is not configured"
	}
	return o.runner.Run(ctx, code, o.codeTimeout)
}

// errorContent 生成错误回复的正文。带错误码的错误附带对应的 HTTP 状态码。
func errorContent(err error) string {
	if e, ok := xerrors.From(err); ok {
		return fmt.Sprintf("Error: %d: %s", xerrors.StatusOf(e), e.Message())
	}
	return "Error: " + err.Error()
}

func buildRecord(req Request, endpoints []llm.Endpoint, maxTurns int, result *Result, runErr error, started time.Time, duration time.Duration) transcript.Record {
	names := make([]string, len(endpoints))
	for i, endpoint := range endpoints {
		names[i] = endpoint.Name
	}
	record := transcript.Record{
		ID:           result.RunID,
		Endpoints:    names,
		Messages:     append([]llm.Message(nil), req.Messages...),
		Responses:    toMessages(result.Responses),
		AutoContinue: req.AutoContinue,
		MaxTurns:     maxTurns,
		Turns:        result.Turns,
		StopReason:   string(result.StopReason),
		CreatedAt:    started.Unix(),
		DurationMS:   duration.Milliseconds(),
	}
	if runErr != nil {
		record.Error = xerrors.MessageOf(runErr)
	}
	return record
}

// persist 归档并广播对话记录，失败只记录日志。
func (o *Orchestrator) persist(ctx context.Context, log *slog.Logger, record transcript.Record) {
	if o.archive == nil && o.publisher == nil {
		return
	}
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if o.archive != nil {
		if err := o.archive.Save(persistCtx, record); err != nil {
			log.Error("archive conversation failed", "error", err)
		}
	}
	if o.publisher != nil {
		if err := o.publisher.Publish(persistCtx, record); err != nil {
			log.Warn("publish conversation event failed", "error", err)
		}
	}
}
