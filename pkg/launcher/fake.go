package launcher

import (
	"context"
	"sync"
)

// Canned is one pre-enqueued Launch outcome for the Fake launcher.
type Canned struct {
	Messages []Message
	Result   Result
	Err      error
}

// Fake is an in-memory Launcher implementing the same contract as
// production launchers, driving all orchestrator/role-shim tests by
// enqueuing pre-canned results, per spec §4.5.
type Fake struct {
	mu       sync.Mutex
	queue    []Canned
	calls    []Request
	injector *InjectionChannel
}

// NewFake returns an empty Fake launcher.
func NewFake() *Fake {
	return &Fake{injector: NewInjectionChannel()}
}

// Enqueue appends a canned outcome to be returned by the next Launch call.
func (f *Fake) Enqueue(c Canned) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, c)
}

// EnqueueSuccess is a convenience for the common "successful text reply"
// case used by role shims expecting a single text block.
func (f *Fake) EnqueueSuccess(text string) {
	f.Enqueue(Canned{
		Messages: []Message{{Type: MessageAssistant, Blocks: []ContentBlock{{Type: BlockText, Text: text}}}},
		Result:   Result{RawOutput: text, Success: true},
	})
}

// EnqueueFailure enqueues a canned launch failure with the given summary,
// used to drive rate-limit and general-failure scenarios.
func (f *Fake) EnqueueFailure(summary string) {
	f.Enqueue(Canned{
		Err: &LaunchError{Kind: ErrUnknown, Message: summary},
	})
}

// Launch pops the next canned outcome, feeds it through OnLogEntry, and
// returns it. If the queue is empty it returns a LaunchError saying no
// canned result was enqueued, since an unplanned Launch call almost always
// indicates a test gap.
func (f *Fake) Launch(ctx context.Context, request Request, options Options) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, request)
	if len(f.queue) == 0 {
		f.mu.Unlock()
		return nil, &LaunchError{Kind: ErrUnknown, Message: "fake launcher: no canned result enqueued"}
	}
	c := f.queue[0]
	f.queue = f.queue[1:]
	f.mu.Unlock()

	if options.OnLogEntry != nil {
		for _, m := range c.Messages {
			options.OnLogEntry(ProjectLogEntry(m))
		}
	}

	if c.Err != nil {
		return nil, c.Err
	}
	result := c.Result
	return &result, nil
}

// Inject satisfies InjectableLauncher, recording injected messages on the
// shared channel for assertions.
func (f *Fake) Inject(message string) error {
	return f.injector.Inject(message)
}

// Injected returns and clears all messages injected since the last call.
func (f *Fake) Injected() []string {
	return f.injector.Drain()
}

// Calls returns every Request passed to Launch, in order.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// Pending reports how many canned outcomes remain queued.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
