package entity

// Wallet represents a tracked wallet address.
type Wallet struct {
	Address string `json:"address" yaml:"address"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
}
