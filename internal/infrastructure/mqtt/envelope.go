package mqtt

// Status values carried by StatusEnvelope.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusEnvelope is published on the status topic.
//
// The last will omits the timestamp since it is fixed before connecting.
type StatusEnvelope struct {
	DeviceID  string `json:"device_id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// ReplyEnvelope is published on the reply topic in answer to a command.
//
// Result 0 means success; any other value is a handler-defined failure code.
type ReplyEnvelope struct {
	CommandID string `json:"command_id"`
	Result    int    `json:"result"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
