package launcher

import (
	"context"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sipeed/cortexd/pkg/logger"
)

// AnthropicLauncher is the concrete LLM session launcher over the Claude
// Messages streaming API. It satisfies Launcher, and InjectableLauncher only
// through a no-op Inject: the Messages API is a single request/response
// stream, so in-flight injection is unsupported and dropped per spec §4.5 step 4 ("If
// the underlying SDK does not support injection, the channel is silently
// dropped with a debug log").
type AnthropicLauncher struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
	tracker      *ProcessTracker

	mu     sync.Mutex
	pidSeq int
}

// NewAnthropicLauncher builds a launcher using apiKey for auth. maxTokens
// defaults to 4096 if zero.
func NewAnthropicLauncher(apiKey, defaultModel string, maxTokens int64, tracker *ProcessTracker) *AnthropicLauncher {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if tracker == nil {
		tracker = NewProcessTracker()
	}
	return &AnthropicLauncher{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		tracker:      tracker,
	}
}

// Inject is a no-op satisfying callers that type-assert for Injector before
// falling back to silent-drop; always returns nil and logs at debug level.
func (l *AnthropicLauncher) Inject(message string) error {
	logger.DebugCF("launcher.anthropic", "injection unsupported by Messages API, dropping", map[string]any{"chars": len(message)})
	return nil
}

func (l *AnthropicLauncher) nextPseudoPID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pidSeq++
	return l.pidSeq
}

// Launch implements the Launcher contract over one streaming Messages call,
// racing a total timeout and an optional idle timeout (reset on every
// stream event) per spec §4.5 step 3, retrying per step 5.
func (l *AnthropicLauncher) Launch(ctx context.Context, request Request, options Options) (*Result, error) {
	model := options.Model
	if model == "" {
		model = l.defaultModel
	}

	attempts := options.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && options.RetryDelayMs > 0 {
			select {
			case <-time.After(time.Duration(options.RetryDelayMs) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := l.launchOnce(ctx, request, options, model)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.WarnCF("launcher.anthropic", "launch attempt failed",
			map[string]any{"attempt": attempt + 1, "of": attempts, "error": err.Error()})
	}
	return nil, lastErr
}

func (l *AnthropicLauncher) launchOnce(parent context.Context, request Request, options Options, model string) (*Result, error) {
	pid := l.nextPseudoPID()
	l.tracker.Register(pid)

	start := time.Now()

	total := options.TimeoutMs
	if total <= 0 {
		total = DefaultTimeout.Milliseconds()
	}
	ctx, cancel := context.WithTimeout(parent, time.Duration(total)*time.Millisecond)
	defer cancel()

	stream := l.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: l.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: request.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(request.InitialUser)),
		},
	})

	events := make(chan anthropic.MessageStreamEventUnion)
	streamErr := make(chan error, 1)
	go func() {
		defer close(events)
		for stream.Next() {
			events <- stream.Current()
		}
		streamErr <- stream.Err()
	}()

	var idleTimer *time.Timer
	var idleCh <-chan time.Time
	if options.IdleTimeoutMs > 0 {
		idleTimer = time.NewTimer(time.Duration(options.IdleTimeoutMs) * time.Millisecond)
		idleCh = idleTimer.C
		defer idleTimer.Stop()
	}

	message := anthropic.Message{}
	if options.OnLogEntry != nil {
		options.OnLogEntry(ProcessLogEntry{Type: "system", Content: "session started"})
	}

loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if err := message.Accumulate(ev); err != nil {
				l.tracker.Abandon(pid)
				return nil, &LaunchError{Kind: ErrUnknown, Message: "accumulate: " + err.Error()}
			}
			if idleTimer != nil {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(time.Duration(options.IdleTimeoutMs) * time.Millisecond)
			}
		case <-idleCh:
			l.tracker.Exit(pid)
			return nil, &LaunchError{Kind: ErrIdleTimeout, Message: "session idle timeout exceeded"}
		case <-ctx.Done():
			l.tracker.Exit(pid)
			return nil, &LaunchError{Kind: ErrTimeout, Message: "session timed out"}
		}
	}

	if err := <-streamErr; err != nil {
		l.tracker.Abandon(pid)
		return nil, &LaunchError{Kind: ErrUnknown, Message: err.Error()}
	}

	rawOutput, blocks := extractContent(message)
	if options.OnLogEntry != nil {
		options.OnLogEntry(ProjectLogEntry(Message{Type: MessageAssistant, Blocks: blocks}))
		options.OnLogEntry(ProcessLogEntry{Type: "result", Content: "success"})
	}

	l.tracker.Abandon(pid)
	return &Result{
		RawOutput:  rawOutput,
		ExitCode:   0,
		DurationMs: time.Since(start).Milliseconds(),
		Success:    true,
	}, nil
}

func extractContent(message anthropic.Message) (string, []ContentBlock) {
	var text string
	blocks := make([]ContentBlock, 0, len(message.Content))
	for _, c := range message.Content {
		switch variant := c.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
			blocks = append(blocks, ContentBlock{Type: BlockText, Text: variant.Text})
		case anthropic.ThinkingBlock:
			blocks = append(blocks, ContentBlock{Type: BlockThinking, Text: variant.Thinking})
		case anthropic.ToolUseBlock:
			blocks = append(blocks, ContentBlock{Type: BlockToolUse, ToolName: variant.Name})
		}
	}
	return text, blocks
}
