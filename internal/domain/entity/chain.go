package entity

// ChainDescriptor holds the configuration for a single EVM chain.
// This structure is defined at the domain level to be used across application and infrastructure layers.
type ChainDescriptor struct {
	ChainID          uint64   `json:"chainId" yaml:"chainId"`
	Name             string   `json:"name" yaml:"name"`
	Identifier       string   `json:"identifier" yaml:"identifier"` // Unique chain identifier (e.g. "ethereum", "base")
	NativeSymbol     string   `json:"nativeSymbol" yaml:"nativeSymbol"`
	NativeDecimals   uint8    `json:"nativeDecimals" yaml:"nativeDecimals"`
	RPCEndpoints     []string `json:"rpcEndpoints" yaml:"rpcEndpoints"` // Ordered by preference, first entry is the primary
	MulticallAddress string   `json:"multicallAddress" yaml:"multicallAddress"`
	WrappedNative    string   `json:"wrappedNative" yaml:"wrappedNative"`
	LookbackBlocks   uint64   `json:"lookbackBlocks" yaml:"lookbackBlocks"` // Activity scan window measured back from the chain head
	LlamaIdentifier  string   `json:"llamaIdentifier,omitempty" yaml:"llamaIdentifier,omitempty"`
}

// LlamaID returns the chain identifier used by the DefiLlama coins API.
// Falls back to the chain identifier, which matches for the supported chains.
func (d ChainDescriptor) LlamaID() string {
	if d.LlamaIdentifier != "" {
		return d.LlamaIdentifier
	}
	return d.Identifier
}
