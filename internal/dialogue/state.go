// Package dialogue implements the host agent's form-filling conversation:
// the per-session facts it collects, the commands that mutate them, the
// phase they imply and the gate that hands the collected request over to
// the stock analysis agent.
package dialogue

import (
	"errors"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("investment amount must be a positive number")
	ErrEmptyStrategy = errors.New("strategy text is empty")
	ErrInvalidEmail  = errors.New("invalid email address")
)

var validate = validator.New()

// Phase is the step of the conversation implied by which facts are set.
// It is always derived, never stored.
type Phase string

const (
	PhaseCollectingPortfolio Phase = "collecting-portfolio"
	PhaseCollectingAmount    Phase = "collecting-amount"
	PhaseCollectingStrategy  Phase = "collecting-strategy"
	PhaseCollectingStocks    Phase = "collecting-stocks"
	PhaseCollectingEmail     Phase = "collecting-email"
	PhaseDispatched          Phase = "dispatched"
)

// Amount is an investment amount with the currency the user expressed it in.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency,omitempty"`
	Raw      string          `json:"raw,omitempty"`
}

// String renders the amount for prompts, e.g. "USD 50,000".
func (a Amount) String() string {
	n := humanize.Commaf(a.Value.InexactFloat64())
	if a.Currency == "" {
		return n
	}
	return a.Currency + " " + n
}

// TickerSet is an insertion-ordered set of upper-case ticker symbols.
type TickerSet []string

// NormalizeTicker upper-cases and trims a symbol and drops a leading "$".
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(t), "$"))
}

// Contains reports whether the set holds t, ignoring case.
func (s TickerSet) Contains(t string) bool {
	t = NormalizeTicker(t)
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

// Add unions tickers into the set and returns the ones that were new.
func (s *TickerSet) Add(tickers ...string) []string {
	var added []string
	for _, t := range tickers {
		t = NormalizeTicker(t)
		if t == "" || s.Contains(t) {
			continue
		}
		*s = append(*s, t)
		added = append(added, t)
	}
	return added
}

// State is everything the host agent knows about one session's request.
// It is serialised to the agent_states blob; PortfolioUploaded is sourced
// from the session row on every load and never persisted here.
type State struct {
	InvestmentAmount *Amount   `json:"investment_amount,omitempty"`
	Strategy         string    `json:"diversification_preference,omitempty"`
	ExistingStocks   TickerSet `json:"existing_portfolio_stocks"`
	NewStocks        TickerSet `json:"new_stocks"`
	ReceiverEmail    string    `json:"receiver_email,omitempty"`

	DispatchedAt      *time.Time `json:"dispatched_at,omitempty"`
	TaskID            string     `json:"task_id,omitempty"`
	DispatchAttempts  int        `json:"dispatch_attempts,omitempty"`
	LastDispatchError string     `json:"last_dispatch_error,omitempty"`

	PortfolioUploaded bool `json:"-"`
}

// NewState returns the defaults used for a fresh session.
func NewState() *State {
	return &State{
		ExistingStocks: TickerSet{},
		NewStocks:      TickerSet{},
	}
}

// StoreInvestmentAmount overwrites the amount. It reports whether the
// stored value changed.
func (s *State) StoreInvestmentAmount(a Amount) (bool, error) {
	if !a.Value.IsPositive() {
		return false, ErrInvalidAmount
	}
	if s.InvestmentAmount != nil && s.InvestmentAmount.Value.Equal(a.Value) && s.InvestmentAmount.Currency == a.Currency {
		return false, nil
	}
	s.InvestmentAmount = &a
	return true, nil
}

// StoreDiversificationPreference stores text verbatim, overwriting any
// previous value.
func (s *State) StoreDiversificationPreference(text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, ErrEmptyStrategy
	}
	if s.Strategy == text {
		return false, nil
	}
	s.Strategy = text
	return true, nil
}

// AddExistingStocks unions tickers into the existing-portfolio set.
func (s *State) AddExistingStocks(tickers []string) []string {
	return s.ExistingStocks.Add(tickers...)
}

// AddNewStocks unions tickers into the new-stocks set.
func (s *State) AddNewStocks(tickers []string) []string {
	return s.NewStocks.Add(tickers...)
}

// StoreReceiverEmail validates and overwrites the report recipient.
func (s *State) StoreReceiverEmail(email string) (bool, error) {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return false, ErrInvalidEmail
	}
	if strings.EqualFold(s.ReceiverEmail, email) {
		return false, nil
	}
	s.ReceiverEmail = email
	return true, nil
}

// AmountSet reports whether an investment amount has been captured.
func (s *State) AmountSet() bool { return s.InvestmentAmount != nil }

// StrategySet reports whether strategy text has been captured.
func (s *State) StrategySet() bool { return strings.TrimSpace(s.Strategy) != "" }

// StocksSet reports whether at least one ticker is known.
func (s *State) StocksSet() bool { return len(s.ExistingStocks) > 0 || len(s.NewStocks) > 0 }

// Dispatched reports whether the request was handed to the analyser.
func (s *State) Dispatched() bool { return s.DispatchedAt != nil }

// CheckPrerequisites is the delegation gate.
func (s *State) CheckPrerequisites() bool {
	return s.PortfolioUploaded && s.AmountSet() && s.StocksSet() && s.StrategySet()
}

// Phase derives the current conversation step: the first missing fact in
// collection order.
func (s *State) Phase() Phase {
	switch {
	case s.Dispatched():
		return PhaseDispatched
	case !s.PortfolioUploaded:
		return PhaseCollectingPortfolio
	case !s.AmountSet():
		return PhaseCollectingAmount
	case !s.StrategySet():
		return PhaseCollectingStrategy
	case !s.StocksSet():
		return PhaseCollectingStocks
	default:
		return PhaseCollectingEmail
	}
}

// AllTickers returns existing then new tickers without duplicates.
func (s *State) AllTickers() []string {
	all := TickerSet{}
	all.Add(s.ExistingStocks...)
	all.Add(s.NewStocks...)
	return all
}
