// Package launcher implements the LLM session launcher contract from
// spec §4.5: a single operation that opens an LLM session with a prompt,
// streams typed messages, supports in-flight message injection, and honors
// total and idle timeouts.
package launcher

import (
	"context"
	"time"
)

// Request is the prompt pair passed to Launch.
type Request struct {
	SystemPrompt string
	InitialUser  string
}

// MessageType enumerates the typed stream messages per spec §4.5.
type MessageType string

const (
	MessageSystem    MessageType = "system"
	MessageAssistant MessageType = "assistant"
	MessageResult    MessageType = "result"
)

// BlockType enumerates assistant content block kinds.
type BlockType string

const (
	BlockThinking   BlockType = "thinking"
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one assistant message content block.
type ContentBlock struct {
	Type       BlockType
	Text       string
	ToolName   string
	ToolInput  map[string]any
	ToolResult string
}

// Message is one typed event in the session stream.
type Message struct {
	Type    MessageType
	Blocks  []ContentBlock // for MessageAssistant
	Success bool           // for MessageResult
	Error   string         // for MessageResult
	Raw     string         // for MessageSystem, implementation-defined init payload
}

// ProcessLogEntry is the projection of a Message handed to the optional
// OnLogEntry callback, per spec §4.5 step 2.
type ProcessLogEntry struct {
	Type    string
	Content string
}

// ProjectLogEntry converts a stream Message to its ProcessLogEntry
// projection, accumulating any text/thinking/tool content into Content.
func ProjectLogEntry(m Message) ProcessLogEntry {
	switch m.Type {
	case MessageSystem:
		return ProcessLogEntry{Type: "system", Content: m.Raw}
	case MessageResult:
		if m.Success {
			return ProcessLogEntry{Type: "result", Content: "success"}
		}
		return ProcessLogEntry{Type: "result", Content: m.Error}
	default:
		var content string
		for _, b := range m.Blocks {
			switch b.Type {
			case BlockText, BlockThinking:
				content += b.Text
			case BlockToolUse:
				content += "[tool_use:" + b.ToolName + "]"
			case BlockToolResult:
				content += b.ToolResult
			}
		}
		return ProcessLogEntry{Type: "assistant", Content: content}
	}
}

// Options configures one Launch call per spec §4.5.
type Options struct {
	Model         string
	CWD           string
	OnLogEntry    func(ProcessLogEntry)
	MaxRetries    int
	RetryDelayMs  int64
	TimeoutMs     int64 // total timeout; defaults to 10 minutes if zero
	IdleTimeoutMs int64 // optional; 0 disables idle timeout
}

// DefaultTimeout is the spec §4.5 default total timeout.
const DefaultTimeout = 10 * time.Minute

// Result is the outcome of a Launch call per spec §4.5.
type Result struct {
	RawOutput  string
	ExitCode   int
	DurationMs int64
	Success    bool
	Error      error
}

// ErrorKind classifies launcher-level failures per spec §7.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrTimeout
	ErrIdleTimeout
)

// LaunchError wraps a launcher failure with its classification.
type LaunchError struct {
	Kind    ErrorKind
	Message string
}

func (e *LaunchError) Error() string { return e.Message }

// Injector accepts out-of-band user messages delivered in FIFO order to a
// running session, per spec §4.5 step 4 and §9 "Injection channel".
type Injector interface {
	Inject(message string) error
}

// Launcher opens an LLM session with request/options and returns once the
// session completes, times out, or is canceled via ctx.
type Launcher interface {
	Launch(ctx context.Context, request Request, options Options) (*Result, error)
}

// InjectableLauncher is a Launcher that also exposes an injection channel
// for the currently running session, if any. Callers type-assert for it and
// silently drop injections when it is absent, per spec §4.5 step 4. A
// launcher whose SDK cannot stream input either leaves it unimplemented or,
// like AnthropicLauncher, implements Inject as a no-op that drops the message.
type InjectableLauncher interface {
	Launcher
	Injector
}
