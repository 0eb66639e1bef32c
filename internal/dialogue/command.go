package dialogue

import (
	"fmt"
)

// Kind enumerates the state mutations the host agent understands.
type Kind int

const (
	KindSetInvestmentAmount Kind = iota + 1
	KindSetStrategy
	KindAddExistingStocks
	KindAddNewStocks
	KindSetReceiverEmail
	KindMarkPortfolioUploaded
)

func (k Kind) String() string {
	switch k {
	case KindSetInvestmentAmount:
		return "set_investment_amount"
	case KindSetStrategy:
		return "set_strategy"
	case KindAddExistingStocks:
		return "add_existing_stocks"
	case KindAddNewStocks:
		return "add_new_stocks"
	case KindSetReceiverEmail:
		return "set_receiver_email"
	case KindMarkPortfolioUploaded:
		return "mark_portfolio_uploaded"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Command is a tagged union: Kind selects which payload field is read.
type Command struct {
	Kind    Kind
	Amount  Amount   // KindSetInvestmentAmount
	Text    string   // KindSetStrategy
	Tickers []string // KindAddExistingStocks, KindAddNewStocks
	Email   string   // KindSetReceiverEmail
}

// Outcome describes the effect of one applied command.
type Outcome struct {
	Command Command
	Changed bool
	Added   []string // tickers actually added
}

type handlerFunc func(*State, Command) (Outcome, error)

// handlers is the dispatch table from command kind to state mutation.
var handlers = map[Kind]handlerFunc{
	KindSetInvestmentAmount: func(s *State, c Command) (Outcome, error) {
		changed, err := s.StoreInvestmentAmount(c.Amount)
		return Outcome{Command: c, Changed: changed}, err
	},
	KindSetStrategy: func(s *State, c Command) (Outcome, error) {
		changed, err := s.StoreDiversificationPreference(c.Text)
		return Outcome{Command: c, Changed: changed}, err
	},
	KindAddExistingStocks: func(s *State, c Command) (Outcome, error) {
		added := s.AddExistingStocks(c.Tickers)
		return Outcome{Command: c, Changed: len(added) > 0, Added: added}, nil
	},
	KindAddNewStocks: func(s *State, c Command) (Outcome, error) {
		added := s.AddNewStocks(c.Tickers)
		return Outcome{Command: c, Changed: len(added) > 0, Added: added}, nil
	},
	KindSetReceiverEmail: func(s *State, c Command) (Outcome, error) {
		changed, err := s.StoreReceiverEmail(c.Email)
		return Outcome{Command: c, Changed: changed}, err
	},
	KindMarkPortfolioUploaded: func(s *State, c Command) (Outcome, error) {
		changed := !s.PortfolioUploaded
		s.PortfolioUploaded = true
		return Outcome{Command: c, Changed: changed}, nil
	},
}

// Apply runs cmd against s through the dispatch table.
func Apply(s *State, cmd Command) (Outcome, error) {
	h, ok := handlers[cmd.Kind]
	if !ok {
		return Outcome{Command: cmd}, fmt.Errorf("unknown command kind: %s", cmd.Kind)
	}
	return h(s, cmd)
}
