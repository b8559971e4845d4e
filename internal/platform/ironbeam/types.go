package ironbeam

// authRequest is the body for POST /auth. Password is only required for
// live accounts; demo keys authenticate with username + apiKey alone.
type authRequest struct {
	Username string `json:"username"`
	APIKey   string `json:"apiKey"`
	Password string `json:"password,omitempty"`
}

type authResponse struct {
	Token string `json:"token"`
}

// quoteMessage is one symbol's entry in the GET /market/quotes response.
// lastPrice is zero outside trading hours; callers fall back to the bid/ask
// midpoint.
type quoteMessage struct {
	Symbol    string  `json:"exchSym"`
	LastPrice float64 `json:"lastPrice"`
	BidPrice  float64 `json:"bidPrice"`
	AskPrice  float64 `json:"askPrice"`
}

type quotesResponse struct {
	Quotes []quoteMessage `json:"quotes"`
}

// orderUpdateRequest is the body for PUT /order/{account}/update/{orderID}.
// Omitted legs are left unchanged by the broker.
type orderUpdateRequest struct {
	Quantity   int      `json:"quantity"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type createStreamResponse struct {
	StreamID string `json:"streamId"`
}

// errorResponse is the broker's error envelope on non-2xx responses.
type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// wsQuote is one tick on the stream socket. The broker uses single-letter
// keys on the hot path: s=symbol, l=last, b=bid, a=ask.
type wsQuote struct {
	Symbol string  `json:"s"`
	Last   float64 `json:"l"`
	Bid    float64 `json:"b"`
	Ask    float64 `json:"a"`
}

// wsEnvelope identifies a stream message before full decoding. Quote ticks
// carry t="q"; anything else is ignored.
type wsEnvelope struct {
	Type string `json:"t"`
}

// wsSubscribe is the client→server subscription command.
type wsSubscribe struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}
