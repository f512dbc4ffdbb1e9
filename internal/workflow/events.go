package workflow

import "time"

// Event bus topics
const (
	TopicSlipCreated      = "workflow:slip-created"
	TopicSentToProduction = "workflow:sent-to-production"
	TopicSentToPackaging  = "workflow:sent-to-packaging"
	TopicSentToDispatch   = "workflow:sent-to-dispatch"
	TopicStatusChanged    = "workflow:status-changed"
	// TopicDispatchReady fires whenever an order reaches "ready to dispatch"
	TopicDispatchReady = "workflow:dispatch-ready"
)

// Event is published after the step that produced it has been committed
type Event struct {
	Topic    string    `json:"topic"`
	OrderID  int64     `json:"orderId,string"`
	ShortID  string    `json:"shortId"`
	Operator string    `json:"operator"`
	Action   string    `json:"action"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}
