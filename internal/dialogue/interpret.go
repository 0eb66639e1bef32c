package dialogue

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedAmount asks the user to restate the investment amount.
	ErrMalformedAmount = errors.New("could not read an investment amount")
	// ErrMalformedEmail asks the user to restate the email address.
	ErrMalformedEmail = errors.New("could not read an email address")
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	amountPattern = regexp.MustCompile(`(?i)(\$|₹|€|£|\busd\b|\binr\b|\beur\b|\bgbp\b|\brs\.?)?\s*(\d{1,3}(?:,\d{2,3})+(?:\.\d+)?|\d+(?:\.\d+)?)\s*(thousand|million|billion|lakhs?|lacs?|crores?|mn|bn|cr|k|m|b)?\b\s*(usd|inr|eur|gbp|dollars?|rupees?|euros?|pounds?)?\b`)

	// numbers that describe something other than money
	notAmountSuffix = regexp.MustCompile(`(?i)^\s*(?:(?:-|–|to)\s*\d+(?:\.\d+)?\s*)?(?:years?|yrs?|months?|%|percent|stocks?|shares?|companies)`)

	cashtagPattern = regexp.MustCompile(`\$([A-Za-z]{1,5}(?:\.[A-Za-z]{1,2})?)\b`)
	capsPattern    = regexp.MustCompile(`\b[A-Z]{1,5}(?:\.[A-Z]{1,2})?\b`)
	wordPattern    = regexp.MustCompile(`[A-Za-z]+(?:\.[A-Za-z]{1,2})?`)
	contraction    = regexp.MustCompile(`'[A-Za-z]+`)
	tickerShape    = regexp.MustCompile(`^[A-Z]{1,5}(?:\.[A-Z]{1,2})?$`)

	stockCue    = regexp.MustCompile(`(?i)\b(stocks?|tickers?|shares|symbols?|add|buy|include|analy[sz]e|interested|consider|own|hold|holdings)\b`)
	existingCue = regexp.MustCompile(`(?i)\b(i (?:currently |already )?(?:own|hold|have)|my (?:current )?(?:portfolio|holdings)|holding)\b`)
	// an explicit request to replace a strategy that was already given
	strategyRevision = regexp.MustCompile(`(?i)\b(?:change|update|switch|revise|replace)\b[^.!?]*\bstrateg|\bstrateg\w*\s+(?:is|should be)\b`)

	strategyCue = regexp.MustCompile(`(?i)(strateg|diversif|\brisk|long[- ]term|short[- ]term|\bgrowth\b|dividend|conservative|aggressive|\bbalanced\b|\bvalue invest|\bincome\b|horizon|\binvestor\b)`)
)

var currencyAliases = map[string]string{
	"$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD",
	"₹": "INR", "inr": "INR", "rs": "INR", "rs.": "INR", "rupee": "INR", "rupees": "INR",
	"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP", "pound": "GBP", "pounds": "GBP",
}

var magnitudes = map[string]int64{
	"k": 1_000, "thousand": 1_000,
	"lakh": 100_000, "lakhs": 100_000, "lac": 100_000, "lacs": 100_000,
	"m": 1_000_000, "mn": 1_000_000, "million": 1_000_000,
	"cr": 10_000_000, "crore": 10_000_000, "crores": 10_000_000,
	"b": 1_000_000_000, "bn": 1_000_000_000, "billion": 1_000_000_000,
}

// stopWords are upper-case tokens that look like tickers but are ordinary
// words in replies.
var stopWords = toSet(`I A AN AND OR THE TO OF IN ON AT FOR BY MY ME WE US USA IS IT BE AS SO DO
	USD INR EUR GBP OK OKAY YES NO NOT NONE NOPE PLEASE ADD ALSO WANT LIKE WOULD LOVE BUY SOME ANY
	STOCK STOCKS TICKER TICKERS SHARE SHARES SYMBOL SYMBOLS THANKS THANK YOU HI HELLO HEY JUST ONLY MORE
	OTHER OTHERS WITH THAT THIS THESE THOSE LIST INTO FROM OUT NEW SURE MAYBE ALL BOTH TOO WELL
	INCLUDE INTERESTED IN CONSIDER ANALYSE ANALYZE HAVE HOLD OWN CAN YOUR ARE THEM THEY WHAT WHICH ABOUT
	DONE GOOD GREAT NICE COOL WOW LOL GO`)

func toSet(words string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

// Interpretation is the result of reading one user message.
type Interpretation struct {
	Commands []Command
	// Clarify is set when the message looked like an answer to the current
	// question but could not be parsed (ErrMalformedAmount, ErrMalformedEmail).
	Clarify error
}

// Interpreter turns free text into commands. It is deterministic and uses
// the current phase to decide how liberally to read the message.
type Interpreter struct{}

// Read interprets text against the facts already known for a session. Once
// a strategy is stored it is only replaced when the user says so; cue words
// in later messages do not overwrite it.
func (in Interpreter) Read(text string, state *State) Interpretation {
	out := in.Interpret(text, state.Phase())
	if !state.StrategySet() || strategyRevision.MatchString(text) {
		return out
	}
	kept := out.Commands[:0]
	for _, cmd := range out.Commands {
		if cmd.Kind != KindSetStrategy {
			kept = append(kept, cmd)
		}
	}
	out.Commands = kept
	return out
}

// Interpret extracts every fact it can find in text.
func (Interpreter) Interpret(text string, phase Phase) Interpretation {
	var out Interpretation
	text = strings.TrimSpace(text)
	if text == "" {
		return out
	}

	// Emails are removed before looking for numbers and tickers.
	rest := text
	if email := emailPattern.FindString(text); email != "" {
		out.Commands = append(out.Commands, Command{Kind: KindSetReceiverEmail, Email: email})
		rest = emailPattern.ReplaceAllString(text, " ")
	} else if phase == PhaseCollectingEmail && strings.Contains(text, "@") {
		out.Clarify = ErrMalformedEmail
	}

	amount, found, malformed := parseAmount(rest, phase == PhaseCollectingAmount)
	if found {
		out.Commands = append(out.Commands, Command{Kind: KindSetInvestmentAmount, Amount: amount})
	}

	if tickers := extractTickers(rest, phase == PhaseCollectingStocks); len(tickers) > 0 {
		kind := KindAddNewStocks
		if existingCue.MatchString(rest) {
			kind = KindAddExistingStocks
		}
		out.Commands = append(out.Commands, Command{Kind: kind, Tickers: tickers})
	}

	cued := strategyCue.MatchString(text)
	if cued || (phase == PhaseCollectingStrategy && len(out.Commands) == 0) {
		out.Commands = append(out.Commands, Command{Kind: KindSetStrategy, Text: text})
	}

	if phase == PhaseCollectingAmount && !found && out.Clarify == nil {
		if malformed || len(out.Commands) == 0 {
			out.Clarify = ErrMalformedAmount
		}
	} else if malformed && out.Clarify == nil {
		out.Clarify = ErrMalformedAmount
	}
	return out
}

// parseAmount finds the first money-like number. Outside the amount phase
// a currency or magnitude marker is required. malformed reports a number
// that was clearly meant as an amount but is not positive.
func parseAmount(text string, expecting bool) (Amount, bool, bool) {
	for _, m := range amountPattern.FindAllStringSubmatchIndex(text, -1) {
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return text[m[2*i]:m[2*i+1]]
		}
		cur := strings.ToLower(firstNonEmpty(group(1), group(4)))
		mag := strings.ToLower(group(3))
		cued := cur != "" || mag != ""
		if !cued && (!expecting || notAmountSuffix.MatchString(text[m[1]:])) {
			continue
		}

		value, err := decimal.NewFromString(strings.ReplaceAll(group(2), ",", ""))
		if err != nil {
			return Amount{}, false, true
		}
		if f, ok := magnitudes[mag]; ok {
			value = value.Mul(decimal.NewFromInt(f))
		}
		if !value.IsPositive() {
			return Amount{}, false, true
		}
		return Amount{
			Value:    value,
			Currency: currencyAliases[cur],
			Raw:      strings.TrimSpace(text[m[0]:m[1]]),
		}, true, false
	}
	return Amount{}, false, false
}

// extractTickers reads cash-tags anywhere, upper-case symbols when the
// message talks about stocks, and a reply that is nothing but a list of
// symbols. When the question asked for tickers the list may be in any case.
func extractTickers(text string, expecting bool) []string {
	var set TickerSet
	for _, m := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		set.Add(m[1])
	}

	if expecting || stockCue.MatchString(text) {
		for _, tok := range capsPattern.FindAllString(text, -1) {
			if !stopWords[tok] {
				set.Add(tok)
			}
		}
	}

	if list, ok := symbolList(contraction.ReplaceAllString(text, ""), expecting); ok {
		set.Add(list...)
	}
	return set
}

// symbolList reports whether text is only ticker-shaped words and filler.
// Unless lenient, the symbols must be written in upper case and the text may
// hold no digits, so "50K" or "ok sure" are not read as tickers.
func symbolList(text string, lenient bool) ([]string, bool) {
	if !lenient && strings.ContainsAny(text, "0123456789") {
		return nil, false
	}
	var out []string
	for _, w := range wordPattern.FindAllString(text, -1) {
		up := strings.ToUpper(w)
		if stopWords[up] {
			continue
		}
		if !tickerShape.MatchString(up) || (!lenient && w != up) {
			return nil, false
		}
		out = append(out, up)
	}
	return out, len(out) > 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
