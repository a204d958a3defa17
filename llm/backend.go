package llm

import "context"

// Backend abstracts the LLM inference engine. Implementations must poll the
// context for cancellation during long completions and return promptly with
// ctx.Err() wrapped in a BackendError.
//
// Thread model: Complete blocks the caller. The agent core serializes all
// calls, so implementations need no internal locking beyond what their own
// transport requires.
type Backend interface {
	// Complete produces one assistant message for the given transcript and
	// tool list. The returned message may carry tool calls.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// ClearSlot drops all inference state tied to the current conversation
	// (the KV cache slot on llama-server, any cached prefix elsewhere). The
	// caller's transcript remains the source of truth and is reprocessed on
	// the next Complete.
	ClearSlot()

	// ContextWindow returns the total context size in tokens.
	ContextWindow() int
}
