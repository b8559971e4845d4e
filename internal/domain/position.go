package domain

// OrderSide is the direction of the managed position. It fixes the sign of all
// profit and distance math.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// MoreFavorable reports whether price a beats price b in the profit direction
// for this side: strictly greater for BUY, strictly lower for SELL.
func (s OrderSide) MoreFavorable(a, b float64) bool {
	if s == Buy {
		return a > b
	}
	return a < b
}

// Offset shifts base by dist in the profit direction for this side.
func (s OrderSide) Offset(base, dist float64) float64 {
	if s == Buy {
		return base + dist
	}
	return base - dist
}

// BreakevenState tracks progress through the breakeven ladder. The state is
// derived from the move counter and is sticky: once COMPLETED it never reverts.
type BreakevenState string

const (
	BreakevenNotStarted BreakevenState = "NOT_STARTED"
	BreakevenMove1Done  BreakevenState = "MOVE_1_DONE"
	BreakevenMove2Done  BreakevenState = "MOVE_2_DONE"
	BreakevenMove3Done  BreakevenState = "MOVE_3_DONE"
	BreakevenCompleted  BreakevenState = "COMPLETED"
)

// PositionState is the in-memory record of one managed order and its
// adjustment history. Exactly one PositionState exists per order_id under
// management at a time. All mutation after registration happens inside the
// monitor's critical section; the engines only read it.
type PositionState struct {
	OrderID    string
	AccountID  string
	Symbol     string // broker format "EXCHANGE:PRODUCT.CONTRACT", e.g. "XCME:ES.Z25"
	Side       OrderSide
	EntryPrice float64
	Quantity   int

	// Mutated only after a successful broker update.
	CurrentStopLoss         *float64
	CurrentTakeProfit       *float64
	BreakevenMovesCompleted int
	TPMovesCompleted        int

	// Running extremes since monitoring began, updated on every valid tick.
	HighestPrice *float64
	LowestPrice  *float64

	// Profit-level indices that have already fired. A level fires at most once
	// for the lifetime of the position.
	ProfitLevelsFired map[int]struct{}
}

// NewPositionState creates the state record for a freshly registered order.
func NewPositionState(orderID, accountID, symbol string, side OrderSide, entryPrice float64, quantity int) *PositionState {
	return &PositionState{
		OrderID:           orderID,
		AccountID:         accountID,
		Symbol:            symbol,
		Side:              side,
		EntryPrice:        entryPrice,
		Quantity:          quantity,
		ProfitLevelsFired: make(map[int]struct{}),
	}
}

// Profit returns the directional profit of the position at price: positive
// when the market has moved in the position's favor.
func (p *PositionState) Profit(price float64) float64 {
	if p.Side == Buy {
		return price - p.EntryPrice
	}
	return p.EntryPrice - price
}

// UpdateExtremes records price into the running highest/lowest extrema. Both
// sides track both extremes regardless of direction.
func (p *PositionState) UpdateExtremes(price float64) {
	if p.HighestPrice == nil || price > *p.HighestPrice {
		v := price
		p.HighestPrice = &v
	}
	if p.LowestPrice == nil || price < *p.LowestPrice {
		v := price
		p.LowestPrice = &v
	}
}

// ProfitLevelFired reports whether the profit-level trigger at index i has
// already fired for this position.
func (p *PositionState) ProfitLevelFired(i int) bool {
	_, ok := p.ProfitLevelsFired[i]
	return ok
}

// MarkProfitLevelFired records that the profit-level trigger at index i has
// fired. Called by the monitor only after the broker update commits.
func (p *PositionState) MarkProfitLevelFired(i int) {
	if p.ProfitLevelsFired == nil {
		p.ProfitLevelsFired = make(map[int]struct{})
	}
	p.ProfitLevelsFired[i] = struct{}{}
}

// BreakevenStateFor derives the ladder state from the move counter and the
// number of configured levels.
func (p *PositionState) BreakevenStateFor(levels int) BreakevenState {
	if levels > 0 && p.BreakevenMovesCompleted >= levels {
		return BreakevenCompleted
	}
	switch p.BreakevenMovesCompleted {
	case 0:
		return BreakevenNotStarted
	case 1:
		return BreakevenMove1Done
	case 2:
		return BreakevenMove2Done
	default:
		return BreakevenMove3Done
	}
}
