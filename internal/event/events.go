package event

// OperationFinishedEvent 会话到达终态时发布
// Topic: wallet_events_operation
type OperationFinishedEvent struct {
	SessionID     string `json:"session_id"`
	State         string `json:"state"` // success, error, aborted
	Recipient     string `json:"recipient"`
	Amount        string `json:"amount"` // Decimal string
	Currency      string `json:"currency"`
	Network       string `json:"network"`
	GasMethod     string `json:"gas_method,omitempty"`
	OperationHash string `json:"operation_hash,omitempty"`
}
