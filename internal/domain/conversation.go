package domain

// Message is a single entry in the conversation shown to the learner.
// Translation is the only field that changes after creation.
type Message struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	IsUser      bool   `json:"isUser"`
	Timestamp   int64  `json:"timestamp"`
	Translation string `json:"translation,omitempty"`
}

// Explanation is a Japanese explanation of an AI utterance. It is not linked
// to the Message it explains.
type Explanation struct {
	ID       string `json:"id"`
	English  string `json:"english"`
	Japanese string `json:"japanese"`
	Grammar  string `json:"grammar,omitempty"`
}
