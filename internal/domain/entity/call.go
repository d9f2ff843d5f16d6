package entity

// CallOutcome is the per-call result of a batched multicall execution.
// Success false marks the call as unavailable, which is distinct from a
// successful call that returned a zero value.
type CallOutcome struct {
	Success    bool
	ReturnData []byte
}

// ProtocolInfo describes a registered protocol handler for listing endpoints.
type ProtocolInfo struct {
	Name        string   `json:"name"`
	Chains      []string `json:"chains"`
	AlwaysProbe bool     `json:"alwaysProbe"`
}
