package dialogue

import (
	"errors"
	"fmt"
	"strings"
)

const (
	promptPortfolio = "To get started, please upload your current portfolio statement (PDF, image or text). I'll use it to understand your existing holdings."
	promptAmount    = "How much would you like to invest? For example: 50000 or $50,000."
	promptStrategy  = "How would you describe your investment strategy or diversification preference? For example: long-term growth, dividend income, or a balanced mix."
	promptStocks    = "Which stocks would you like me to analyse? Please share their ticker symbols, for example AAPL, MSFT."
	promptEmail     = "Where should I send your analysis report? Please share your email address."
	promptEmailMore = "If there are other stocks you'd like included, mention their tickers as well."

	clarifyAmount = "I couldn't read that amount. Please enter a positive number, for example 50000 or $50,000."
	clarifyEmail  = "That doesn't look like a valid email address. Please check it and send it again."

	// DispatchedReply is the fixed acknowledgment sent once the request has
	// been handed to the stock analysis agent.
	DispatchedReply     = "Thank you! Your portfolio analysis request has been submitted. A detailed stock analysis report will be sent to %s shortly."
	alreadyDispatched   = "Your analysis request has already been submitted. The report will be sent to %s. Start a new conversation to request another analysis."
	dispatchFailedReply = "I have everything I need, but I couldn't reach the stock analysis service just now. Please send any message to try again."
	quotaExceededReply  = "You have reached your limit of %d analysis reports. Please contact support to request more."
)

// promptFor returns the question for the current phase.
func promptFor(s *State) string {
	switch s.Phase() {
	case PhaseCollectingPortfolio:
		return promptPortfolio
	case PhaseCollectingAmount:
		return promptAmount
	case PhaseCollectingStrategy:
		return promptStrategy
	case PhaseCollectingStocks:
		return promptStocks
	case PhaseCollectingEmail:
		if s.ReceiverEmail != "" {
			// Email known; something else still blocks the gate.
			return dispatchFailedReply
		}
		if len(s.NewStocks) == 0 {
			return promptEmail + " " + promptEmailMore
		}
		return promptEmail
	case PhaseDispatched:
		return fmt.Sprintf(alreadyDispatched, s.ReceiverEmail)
	}
	return ""
}

func clarification(err error) string {
	switch {
	case errors.Is(err, ErrMalformedAmount), errors.Is(err, ErrInvalidAmount):
		return clarifyAmount
	case errors.Is(err, ErrMalformedEmail), errors.Is(err, ErrInvalidEmail):
		return clarifyEmail
	}
	return ""
}

// acknowledge describes a fact that was stored this turn.
func acknowledge(o Outcome) string {
	c := o.Command
	switch c.Kind {
	case KindSetInvestmentAmount:
		return fmt.Sprintf("Got it, you'd like to invest %s.", c.Amount)
	case KindSetStrategy:
		return "Thanks, I've noted your investment strategy."
	case KindAddExistingStocks:
		return fmt.Sprintf("Noted your existing holdings: %s.", strings.Join(o.Added, ", "))
	case KindAddNewStocks:
		return fmt.Sprintf("Added %s to the stocks to analyse.", strings.Join(o.Added, ", "))
	case KindSetReceiverEmail:
		return fmt.Sprintf("I'll send the report to %s.", c.Email)
	}
	return ""
}

// composeReply joins acknowledgments, an optional clarification and the
// next question.
func composeReply(acks []string, clarify, prompt string) string {
	var parts []string
	if len(acks) > 0 {
		parts = append(parts, strings.Join(acks, " "))
	}
	if clarify != "" {
		parts = append(parts, clarify)
	}
	if prompt != "" && prompt != clarify {
		parts = append(parts, prompt)
	}
	return strings.Join(parts, "\n\n")
}
