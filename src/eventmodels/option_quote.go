package eventmodels

type OptionQuote struct {
	ContractID          string  `json:"contract_id"`
	ForwardPrice        float64 `json:"forward_price"`
	PrevSettlementPrice float64 `json:"prev_settlement_price"`
	OpenInterest        float64 `json:"open_interest"`
}
