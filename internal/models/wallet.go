package models

// Persona tags assigned from wallet activity.
const (
	TagNovice    = "新手"
	TagCollector = "收藏家"
	TagVeteran   = "老炮"
	TagExplorer  = "探索家"
)

// WalletTraits summarizes on-chain activity for frame styling only.
type WalletTraits struct {
	TransactionCount          uint64   `json:"transactionCount"`
	WalletAgeInDays           int      `json:"walletAgeInDays"`
	NFTCount                  int      `json:"nftCount"`
	UniqueContractsInteracted int      `json:"uniqueContractsInteracted"`
	Tags                      []string `json:"tags"`
}

// HasTag reports whether tag is present.
func (t WalletTraits) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}
