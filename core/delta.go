package core

// ToolCallDelta is one fragment of an eventual tool call surfaced while
// streaming. Index is the positional slot assigned by the backend; ID and Name
// are usually present only on the first fragment of a call, continuation
// fragments carry just an Arguments substring.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Delta is one streaming increment of a model response. Deltas form a lazy,
// finite, non-restartable sequence; fragment order per call is significant and
// is preserved by simple append.
type Delta struct {
	ID           string          `json:"id,omitempty"`
	Content      string          `json:"content,omitempty"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Calls        []ToolCallDelta `json:"calls,omitempty"`
	FinishReason FinishReason    `json:"finish_reason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
}
