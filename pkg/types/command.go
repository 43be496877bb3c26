package types

// CommandUpdate is the reserved configuration-reload placeholder. The agent
// acknowledges it with a success response and takes no further action.
const CommandUpdate = "update"

// Command is one instruction pushed by the collector over the command
// channel. Routing only ever inspects Cmd; Detail is free-form context.
type Command struct {
	Cmd    string `json:"cmd"`
	Detail any    `json:"detail,omitempty"`
}

// Response acknowledges exactly one Command on the same connection.
type Response struct {
	IsOK   bool   `json:"isOk"`
	Detail string `json:"detail,omitempty"`
}
