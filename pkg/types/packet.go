package types

// Packet is the body of every framed message the agent emits. The JSON key
// names are the wire contract shared by all transport strategies.
type Packet struct {
	Type      string `json:"type"`
	Detail    any    `json:"detail"`
	Count     int    `json:"count"`
	IP        string `json:"ip"`
	NodeID    string `json:"nodeId"`
	TimeStamp string `json:"timeStamp"`
}

// ErrorDetail stands in for the detail of a task whose action failed. The
// collector recognizes failures by the presence of the error key.
type ErrorDetail struct {
	Error string `json:"error"`
}
