package broker

import (
	"github.com/shopspring/decimal"
)

// apiError is the error object the broker embeds in a response.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// authorizeRequest authenticates the session for one account token.
type authorizeRequest struct {
	Authorize string `json:"authorize"`
	ReqID     uint64 `json:"req_id"`
}

type authorizeResponse struct {
	MsgType   string    `json:"msg_type"`
	ReqID     uint64    `json:"req_id"`
	Error     *apiError `json:"error,omitempty"`
	Authorize *struct {
		LoginID   string `json:"loginid"`
		IsVirtual int    `json:"is_virtual"`
		Currency  string `json:"currency"`
	} `json:"authorize,omitempty"`
}

// balanceRequest asks for the current account balance.
type balanceRequest struct {
	Balance int    `json:"balance"`
	ReqID   uint64 `json:"req_id"`
}

type balanceResponse struct {
	MsgType string    `json:"msg_type"`
	ReqID   uint64    `json:"req_id"`
	Error   *apiError `json:"error,omitempty"`
	Balance *struct {
		Balance  decimal.Decimal `json:"balance"`
		Currency string          `json:"currency"`
	} `json:"balance,omitempty"`
}

// portfolioRequest asks for the open contracts of the authorized account.
type portfolioRequest struct {
	Portfolio    int      `json:"portfolio"`
	ContractType []string `json:"contract_type,omitempty"`
	ReqID        uint64   `json:"req_id"`
}

type portfolioResponse struct {
	MsgType   string    `json:"msg_type"`
	ReqID     uint64    `json:"req_id"`
	Error     *apiError `json:"error,omitempty"`
	Portfolio *struct {
		Contracts []portfolioContract `json:"contracts"`
	} `json:"portfolio,omitempty"`
}

type portfolioContract struct {
	ContractID int64           `json:"contract_id"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	BidPrice   decimal.Decimal `json:"bid_price"`
}

// AccountInfo describes the authorized broker account.
type AccountInfo struct {
	LoginID   string
	IsVirtual bool
	Currency  string
}

// BalanceInfo is the broker-reported cash balance.
type BalanceInfo struct {
	Balance  decimal.Decimal
	Currency string
}

// Position is one open contract with its entry cost and current value.
type Position struct {
	ContractID int64
	BuyPrice   decimal.Decimal
	BidPrice   decimal.Decimal
}

// UnrealizedPnL sums current value minus entry cost over positions.
func UnrealizedPnL(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.BidPrice.Sub(p.BuyPrice))
	}
	return total
}
