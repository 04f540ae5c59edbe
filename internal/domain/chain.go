package domain

// Chain identifies a supported blockchain network.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainBSC      Chain = "bsc"
)

// AllChains returns every supported chain.
func AllChains() []Chain {
	return []Chain{ChainSolana, ChainEthereum, ChainBase, ChainBSC}
}

// EVMChains returns the chains that speak the Ethereum JSON-RPC dialect.
func EVMChains() []Chain {
	return []Chain{ChainEthereum, ChainBase, ChainBSC}
}

// String returns the string representation of Chain.
func (c Chain) String() string {
	return string(c)
}

// IsValid checks if the chain is a supported value.
func (c Chain) IsValid() bool {
	switch c {
	case ChainSolana, ChainEthereum, ChainBase, ChainBSC:
		return true
	}
	return false
}

// IsEVM reports whether the chain uses EVM-style addresses and RPC.
func (c Chain) IsEVM() bool {
	return c == ChainEthereum || c == ChainBase || c == ChainBSC
}
