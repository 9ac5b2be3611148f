package domain

// ChatMessage is the provider-agnostic chat message shape used by the relay
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is one chat completion call against the upstream provider.
type CompletionRequest struct {
	Messages    []ChatMessage
	Temperature float64
	JSONObject  bool
}
