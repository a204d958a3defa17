// Package llm defines the inference contract the agent core depends on.
//
// The core never talks to a model directly. It hands a Backend the full
// transcript plus the filtered tool list and blocks until a Completion comes
// back. Token streaming, KV-cache layout, and sampling all live behind the
// interface; the core only needs three things from it:
//
//   - Complete: produce one assistant message (possibly carrying tool calls)
//     for the given transcript.
//   - ClearSlot: drop any inference state tied to the current conversation so
//     a subagent or compaction run starts from a clean slate.
//   - ContextWindow: the total token budget, used for usage warnings.
//
// GollmBackend is the bundled implementation for remote providers, built on
// gollm. A llama-server-backed implementation satisfies the same interface.
package llm
