package model

// FaucetRequest is the incoming JSON body for both faucet endpoints.
type FaucetRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount,omitempty"`
}

// FaucetResponse mirrors the distribution result plus limiter state.
type FaucetResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	TxHash      string `json:"tx_hash,omitempty"`
	ExplorerURL string `json:"explorer_url,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Message     string `json:"message,omitempty"`
	Remaining   int    `json:"remaining"`
}

// UserStatusResponse reports per-user limiter state.
type UserStatusResponse struct {
	UserID          string `json:"user_id"`
	Remaining       int    `json:"remaining"`
	CooldownSeconds int    `json:"cooldown_seconds"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
