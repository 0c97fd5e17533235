package hyperliquid

type infoRequest struct {
	Type string `json:"type"`
	Coin string `json:"coin,omitempty"`
	User string `json:"user,omitempty"`
}

// RecentTrade is one element of the recentTrades response.
type RecentTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"` // "B" buy aggressor, "A" sell aggressor
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"`
	Hash string `json:"hash"`
	Tid  int64  `json:"tid"`
}

// SpotState is the spotClearinghouseState response. Balances is nil when
// the endpoint answered without a balances field.
type SpotState struct {
	Balances []SpotBalance `json:"balances"`
}

// SpotBalance is a single token balance.
type SpotBalance struct {
	Coin     string `json:"coin"`
	Token    int    `json:"token"`
	Hold     string `json:"hold"`
	Total    string `json:"total"`
	EntryNtl string `json:"entryNtl"`
}
