package assistant

// Run statuses reported by the remote API.
const (
	RunStatusQueued         = "queued"
	RunStatusInProgress     = "in_progress"
	RunStatusRequiresAction = "requires_action"
	RunStatusCancelling     = "cancelling"
	RunStatusCancelled      = "cancelled"
	RunStatusCompleted      = "completed"
	RunStatusFailed         = "failed"
	RunStatusExpired        = "expired"
)

// Terminal reports whether a run status will not change again.
func Terminal(status string) bool {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// Assistant is the remote assistant resource.
type Assistant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// Thread is one remote conversation thread.
type Thread struct {
	ID string `json:"id"`
}

// Run is one invocation of the assistant against a thread.
type Run struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
}

// File is a remote file resource.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
}

// MessageText is the text payload of one content block.
type MessageText struct {
	Value string `json:"value"`
}

// MessageContent is one content block of a message.
type MessageContent struct {
	Type string       `json:"type"`
	Text *MessageText `json:"text,omitempty"`
}

// Attachment links a remote file to a message.
type Attachment struct {
	FileID string `json:"file_id"`
	Tools  []Tool `json:"tools,omitempty"`
}

// Tool enables a capability on an assistant or attachment.
type Tool struct {
	Type string `json:"type"`
}

// Message is one entry on a thread.
type Message struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"thread_id"`
	Role        string           `json:"role"`
	Content     []MessageContent `json:"content"`
	Attachments []Attachment     `json:"attachments,omitempty"`
	CreatedAt   int64            `json:"created_at"`
}

// Text concatenates the message's text blocks.
func (m *Message) Text() string {
	var out string
	for _, block := range m.Content {
		if block.Type == "text" && block.Text != nil {
			out += block.Text.Value
		}
	}
	return out
}

type messageList struct {
	Data []Message `json:"data"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
