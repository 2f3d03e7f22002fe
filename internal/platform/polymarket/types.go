package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string. Gamma sends
// both depending on the field and the endpoint.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// APIMarket is a market as returned by the Gamma API.
type APIMarket struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	ConditionID   string     `json:"conditionId"`
	Slug          string     `json:"slug"`
	Active        flexBool   `json:"active"`
	Closed        flexBool   `json:"closed"`
	Outcomes      string     `json:"outcomes"`      // JSON-encoded: "[\"Yes\",\"No\"]"
	OutcomePrices string     `json:"outcomePrices"` // JSON-encoded: "[\"0.5\",\"0.5\"]"
	ClobTokenIDs  string     `json:"clobTokenIds"`  // JSON-encoded: "[\"123\",\"456\"]"
	Tokens        []Token    `json:"tokens"`
	Liquidity     flexFloat  `json:"liquidity"`
	Volume        flexFloat  `json:"volume"`
	BestBid       flexFloat  `json:"bestBid"`
	BestAsk       flexFloat  `json:"bestAsk"`
	EndDate       string     `json:"endDate"`
	NegRisk       bool       `json:"negRisk"`
	Events        []APIEvent `json:"events"`
}

// Token carries the per-outcome winner flag once a market settles.
type Token struct {
	TokenID string    `json:"token_id"`
	Outcome string    `json:"outcome"`
	Price   flexFloat `json:"price"`
	Winner  bool      `json:"winner"`
}

// APIEvent is the parent event of a market. Markets in one event are
// mutually exclusive.
type APIEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// APIOrderResult is the CLOB response to POST /order.
type APIOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"` // matched, live, delayed, unmatched
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
}

// APIBalance is the CLOB response to GET /balance-allowance. Balance is in
// collateral base units (6 decimals).
type APIBalance struct {
	Balance string `json:"balance"`
}

// decodeList parses one of Gamma's JSON-encoded string arrays.
func decodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// ToSnapshot converts a Gamma market into a venue-neutral snapshot. Outcomes
// are keyed by their normalized label.
func (m *APIMarket) ToSnapshot(fetchedAt time.Time) domain.MarketSnapshot {
	snap := domain.MarketSnapshot{
		MarketID:  m.ID,
		Question:  m.Question,
		Outcomes:  make(map[string]domain.OutcomeQuote),
		Liquidity: float64(m.Liquidity),
		Volume:    float64(m.Volume),
		Status:    domain.MarketStatusActive,
		FetchedAt: fetchedAt,
	}
	if len(m.Events) > 0 {
		snap.GroupID = m.Events[0].ID
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			snap.ExpiresAt = &t
		}
	}

	labels := decodeList(m.Outcomes)
	prices := decodeList(m.OutcomePrices)
	tokenIDs := decodeList(m.ClobTokenIDs)
	for i, label := range labels {
		q := domain.OutcomeQuote{}
		if i < len(prices) {
			q.Price, _ = strconv.ParseFloat(prices[i], 64)
		}
		if i < len(tokenIDs) {
			q.TokenID = tokenIDs[i]
		}
		snap.Outcomes[domain.NormalizeOutcome(label)] = q
	}
	for _, tok := range m.Tokens {
		name := domain.NormalizeOutcome(tok.Outcome)
		q, ok := snap.Outcomes[name]
		if !ok {
			q = domain.OutcomeQuote{Price: float64(tok.Price)}
		}
		if q.TokenID == "" {
			q.TokenID = tok.TokenID
		}
		snap.Outcomes[name] = q
	}

	// Gamma only quotes the book for the first outcome; the complement
	// side is mirrored for binaries.
	if snap.IsBinary() && m.BestBid > 0 && m.BestAsk > 0 && len(labels) > 0 {
		first := domain.NormalizeOutcome(labels[0])
		other := domain.OutcomeNo
		if first == domain.OutcomeNo {
			other = domain.OutcomeYes
		}
		q := snap.Outcomes[first]
		q.BestBid, q.BestAsk = float64(m.BestBid), float64(m.BestAsk)
		snap.Outcomes[first] = q
		c := snap.Outcomes[other]
		c.BestBid, c.BestAsk = 1-float64(m.BestAsk), 1-float64(m.BestBid)
		snap.Outcomes[other] = c
	}

	if bool(m.Closed) {
		snap.Status = domain.MarketStatusClosed
		if w := m.winner(labels, prices); w != "" {
			snap.Status = domain.MarketStatusResolved
			snap.Winner = w
		}
	} else if !bool(m.Active) {
		snap.Status = domain.MarketStatusClosed
	}
	return snap
}

// winner reads the settled outcome from the token flags, falling back to an
// outcome priced at exactly one.
func (m *APIMarket) winner(labels, prices []string) string {
	for _, tok := range m.Tokens {
		if tok.Winner {
			return domain.NormalizeOutcome(tok.Outcome)
		}
	}
	for i, p := range prices {
		if i < len(labels) && p == "1" {
			return domain.NormalizeOutcome(labels[i])
		}
	}
	return ""
}
