package wazirx

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"spread-trading/internal/core"
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-success response from the REST API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e APIError) Error() string {
	return "wazirx api error status=" + strconv.Itoa(e.Status) + " code=" + strconv.Itoa(e.Code) + ": " + e.Message
}

type depthResponse struct {
	Timestamp int64           `json:"timestamp"`
	Asks      [][]json.Number `json:"asks"`
	Bids      [][]json.Number `json:"bids"`
}

type orderResponse struct {
	ID            json.Number `json:"id"`
	ClientOrderID string      `json:"clientOrderId"`
	Symbol        string      `json:"symbol"`
	Price         string      `json:"price"`
	StopPrice     string      `json:"stopPrice"`
	OrigQty       string      `json:"origQty"`
	ExecutedQty   string      `json:"executedQty"`
	Status        string      `json:"status"`
	Type          string      `json:"type"`
	Side          string      `json:"side"`
	CreatedTime   int64       `json:"createdTime"`
	UpdatedTime   int64       `json:"updatedTime"`
}

type exchangeInfoResponse struct {
	ServerTime int64                `json:"serverTime"`
	Symbols    []symbolInfoResponse `json:"symbols"`
}

type symbolInfoResponse struct {
	Symbol               string `json:"symbol"`
	Status               string `json:"status"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	BaseAssetPrecision   int32  `json:"baseAssetPrecision"`
	QuoteAssetPrecision  int32  `json:"quoteAssetPrecision"`
	IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
	Filters              []struct {
		FilterType string `json:"filterType"`
		MinPrice   string `json:"minPrice"`
		MaxPrice   string `json:"maxPrice"`
		TickSize   string `json:"tickSize"`
	} `json:"filters"`
}

type tickerResponse struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
	OpenPrice  string `json:"openPrice"`
	LowPrice   string `json:"lowPrice"`
	HighPrice  string `json:"highPrice"`
	LastPrice  string `json:"lastPrice"`
	Volume     string `json:"volume"`
	BidPrice   string `json:"bidPrice"`
	AskPrice   string `json:"askPrice"`
	At         int64  `json:"at"`
}

type fundResponse struct {
	Asset       string `json:"asset"`
	Free        string `json:"free"`
	Locked      string `json:"locked"`
	ReservedFee string `json:"reservedFee"`
}

// Fund is one asset balance of the account.
type Fund struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

func (f Fund) Total() decimal.Decimal { return f.Free.Add(f.Locked) }

// FundOf picks asset from funds; a missing asset is a zero balance.
func FundOf(funds []Fund, asset string) Fund {
	for _, f := range funds {
		if f.Asset == asset {
			return f
		}
	}
	return Fund{Asset: asset}
}

// SymbolInfo is one market from exchangeInfo.
type SymbolInfo struct {
	Symbol     string
	Status     string
	BaseAsset  string
	QuoteAsset string
	Rules      core.Rules
}

// Ticker is a 24h rolling ticker.
type Ticker struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	LastPrice  decimal.Decimal
	BidPrice   decimal.Decimal
	AskPrice   decimal.Decimal
	Volume     decimal.Decimal
}

// QuoteVolume approximates 24h turnover in the quote asset.
func (t Ticker) QuoteVolume() decimal.Decimal {
	return t.Volume.Mul(t.LastPrice)
}

func parseSymbolInfo(src symbolInfoResponse) SymbolInfo {
	info := SymbolInfo{
		Symbol:     src.Symbol,
		Status:     src.Status,
		BaseAsset:  src.BaseAsset,
		QuoteAsset: src.QuoteAsset,
	}
	for _, f := range src.Filters {
		if f.FilterType == "PRICE_FILTER" {
			if v, err := decimal.NewFromString(f.TickSize); err == nil {
				info.Rules.PriceTick = v
			}
		}
	}
	if src.BaseAssetPrecision > 0 {
		info.Rules.QtyStep = decimal.New(1, -src.BaseAssetPrecision)
	}
	return info
}

func parseTicker(src tickerResponse) Ticker {
	return Ticker{
		Symbol:     src.Symbol,
		BaseAsset:  src.BaseAsset,
		QuoteAsset: src.QuoteAsset,
		LastPrice:  parseDecimal(src.LastPrice),
		BidPrice:   parseDecimal(src.BidPrice),
		AskPrice:   parseDecimal(src.AskPrice),
		Volume:     parseDecimal(src.Volume),
	}
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func parseLevels(raw [][]json.Number) ([]core.Level, error) {
	levels := make([]core.Level, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			return nil, core.ErrDepthIncomplete
		}
		price, err := core.ParsePrice(row[0].String())
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(row[1].String())
		if err != nil {
			return nil, core.ErrBadPrice
		}
		levels = append(levels, core.Level{Price: price, Qty: qty})
	}
	return levels, nil
}

func (r orderResponse) toOrder() core.Order {
	order := core.Order{
		ID:        r.ID.String(),
		ClientID:  r.ClientOrderID,
		Symbol:    r.Symbol,
		Side:      core.Side(r.Side),
		Type:      core.OrderType(r.Type),
		Price:     parseDecimal(r.Price),
		StopPrice: parseDecimal(r.StopPrice),
		Qty:       parseDecimal(r.OrigQty),
		Status:    core.OrderStatus(r.Status),
	}
	if r.CreatedTime > 0 {
		order.CreatedAt = msTime(r.CreatedTime)
	}
	return order
}

func (r orderResponse) toQuery() core.OrderQuery {
	q := core.OrderQuery{
		ID:          r.ID.String(),
		Symbol:      r.Symbol,
		Side:        core.Side(r.Side),
		Price:       parseDecimal(r.Price),
		OrigQty:     parseDecimal(r.OrigQty),
		ExecutedQty: parseDecimal(r.ExecutedQty),
		Status:      core.OrderStatus(r.Status),
	}
	if r.UpdatedTime > 0 {
		q.UpdatedAt = msTime(r.UpdatedTime)
	}
	return q
}
