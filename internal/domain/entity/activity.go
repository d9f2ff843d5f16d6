package entity

// ChainActivity is the result of probing one chain's event logs for a wallet.
// Detected protocol names are a superset hint: handlers still verify on-chain
// state before reporting a position.
type ChainActivity struct {
	Chain     string   `json:"chain"`
	FromBlock uint64   `json:"fromBlock"`
	ToBlock   uint64   `json:"toBlock"`
	Detected  []string `json:"detected"`
}

// Has reports whether the named protocol produced at least one matching log.
func (a ChainActivity) Has(protocol string) bool {
	for _, name := range a.Detected {
		if name == protocol {
			return true
		}
	}
	return false
}
