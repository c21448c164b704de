package roundservice

import (
	"errors"
	"time"

	"github.com/contenox/coffeehouse/conversationstore"
)

var (
	ErrNoAgents           = errors.New("roundservice: no agents configured")
	ErrAutoChatRunning    = errors.New("roundservice: auto-chat already running")
	ErrAutoChatNotRunning = errors.New("roundservice: auto-chat not running")
	ErrInvalidInterval    = errors.New("roundservice: interval must be positive")
)

// Bus subjects emitted by the orchestrator.
const (
	// SubjectAgentError carries an AgentErrorEvent when one agent's
	// invocation fails. The round itself keeps going.
	SubjectAgentError = "coffeehouse.agent.error"
	// SubjectAutoChatDone carries an AutoChatDoneEvent once the round
	// limit is reached.
	SubjectAutoChatDone = "coffeehouse.autochat.done"
)

// Reply is one agent's outcome in a round. Exactly one of Message and
// Error is set.
type Reply struct {
	AgentID   string                     `json:"agentId"`
	AgentName string                     `json:"agentName"`
	Message   *conversationstore.Message `json:"message,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// AgentErrorEvent is the payload published on SubjectAgentError.
type AgentErrorEvent struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Error     string `json:"error"`
}

// AutoChatDoneEvent is the payload published on SubjectAutoChatDone.
type AutoChatDoneEvent struct {
	RoundsDone int `json:"roundsDone"`
	RoundLimit int `json:"roundLimit"`
}

// AutoChatConfig configures the agents-talk-to-agents loop. RoundLimit 0
// means no limit; the loop then runs until stopped.
type AutoChatConfig struct {
	Interval   time.Duration `json:"interval"`
	RoundLimit int           `json:"roundLimit"`
}

// Status reports the auto-chat loop state.
type Status struct {
	Running    bool          `json:"running"`
	RoundsDone int           `json:"roundsDone"`
	RoundLimit int           `json:"roundLimit"`
	Interval   time.Duration `json:"interval"`
}
