// Package core provides the foundational domain types used by agentloop. It
// defines the core abstractions for:
//
//   - Messages (role-based conversation records with tool calls and results)
//   - Deltas (streaming increments carrying partial text, reasoning and
//     fragmented tool-call payloads)
//   - Conversations (owned, ordered message history plus round accounting)
//   - Descriptors (read-only capability declarations exposed to models)
//
// The package intentionally keeps implementation concerns (backends, tool
// dispatch, the turn state machine) out of scope so that higher layers can
// depend on a small, stable vocabulary.
package core
