package events

import "time"

// Topics published on the bus.
const (
	TopicPriceTick   = "price.tick"
	TopicTradeSignal = "trade.signal"
	TopicTradeOpened = "trade.opened"
	TopicTradeClosed = "trade.closed"
	TopicTradeBlock  = "trade.blocked"
	TopicRiskAlert   = "risk.alert"
)

// TradeSignal asks the coordinator to attempt an entry. Strategy
// engines and operator tooling publish these; the intake loop in main
// consumes them.
type TradeSignal struct {
	Platform   string    `json:"platform"`
	Asset      string    `json:"asset"`
	Direction  string    `json:"direction"`
	Strategy   string    `json:"strategy"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// PriceTick is one market data update.
type PriceTick struct {
	Platform  string    `json:"platform"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeOpened announces a successfully persisted trade.
type TradeOpened struct {
	TradeID    string    `json:"trade_id"`
	Platform   string    `json:"platform"`
	Asset      string    `json:"asset"`
	Direction  string    `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	Strategy   string    `json:"strategy"`
	Timestamp  time.Time `json:"timestamp"`
}

// TradeClosed announces a closed trade.
type TradeClosed struct {
	TradeID    string    `json:"trade_id"`
	Platform   string    `json:"platform"`
	Asset      string    `json:"asset"`
	ExitPrice  float64   `json:"exit_price"`
	ProfitLoss float64   `json:"profit_loss"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// TradeBlocked announces an attempt the bot declined.
type TradeBlocked struct {
	Platform  string    `json:"platform"`
	Asset     string    `json:"asset"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskAlert flags a condition an operator should look at.
type RiskAlert struct {
	Level     string    `json:"level"` // "warning" or "critical"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
