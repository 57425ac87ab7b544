package model

// AddressCategory classifies an address in the Address Intelligence Store.
type AddressCategory string

const (
	CategoryCEX             AddressCategory = "cex"
	CategoryDexRouter       AddressCategory = "dex_router"
	CategoryDexFactory      AddressCategory = "dex_factory"
	CategoryLendingPool     AddressCategory = "lending_pool"
	CategoryStakingContract AddressCategory = "staking_contract"
	CategoryBridge          AddressCategory = "bridge"
	CategoryMarketMaker     AddressCategory = "market_maker"
	CategoryMixerSanctioned AddressCategory = "mixer_sanctioned"
	CategoryWhale           AddressCategory = "whale"
	CategoryContractUnknown AddressCategory = "contract_unknown"
	CategoryEOAUnknown      AddressCategory = "eoa_unknown"
)

// ProtocolCategories is the set of categories P2 (DEX/protocol
// classification) recognizes as verified protocol contracts.
var ProtocolCategories = map[AddressCategory]bool{
	CategoryDexRouter:       true,
	CategoryDexFactory:      true,
	CategoryLendingPool:     true,
	CategoryStakingContract: true,
	CategoryBridge:          true,
}

// AddressRecord is a read-only Address Intelligence Store record.
type AddressRecord struct {
	Address     string
	Blockchain  string
	Category    AddressCategory
	EntityName  string
	Confidence  float64
	BalanceUSD  float64
	HasBalance  bool
	Tags        []string
}

// HasTag reports whether the record carries the given tag.
func (r AddressRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
