package dialogue

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCommand(cmds []Command, kind Kind) (Command, bool) {
	for _, c := range cmds {
		if c.Kind == kind {
			return c, true
		}
	}
	return Command{}, false
}

func TestInterpret_Amounts(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		phase    Phase
		value    string
		currency string
	}{
		{"bare number when asked", "50000", PhaseCollectingAmount, "50000", ""},
		{"dollar with commas", "I want to invest $50,000", PhaseCollectingPortfolio, "50000", "USD"},
		{"rupee lakh grouping", "₹5,00,000", PhaseCollectingStocks, "500000", "INR"},
		{"magnitude suffix", "50k", PhaseCollectingStrategy, "50000", ""},
		{"words after number", "2.5 lakh rupees", PhaseCollectingPortfolio, "250000", "INR"},
		{"currency code after", "around 10000 USD please", PhaseCollectingEmail, "10000", "USD"},
	}

	var in Interpreter
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := in.Interpret(tt.text, tt.phase)
			require.NoError(t, out.Clarify)
			cmd, ok := findCommand(out.Commands, KindSetInvestmentAmount)
			require.True(t, ok, "expected an amount command")
			assert.True(t, cmd.Amount.Value.Equal(decimal.RequireFromString(tt.value)), "got %s", cmd.Amount.Value)
			assert.Equal(t, tt.currency, cmd.Amount.Currency)
		})
	}
}

func TestInterpret_MalformedAmount(t *testing.T) {
	var in Interpreter

	for _, text := range []string{"fifty thousand", "0", "not sure yet"} {
		out := in.Interpret(text, PhaseCollectingAmount)
		assert.ErrorIs(t, out.Clarify, ErrMalformedAmount, text)
		_, ok := findCommand(out.Commands, KindSetInvestmentAmount)
		assert.False(t, ok, text)
	}

	out := in.Interpret("$0", PhaseCollectingEmail)
	assert.ErrorIs(t, out.Clarify, ErrMalformedAmount)
}

func TestInterpret_NumbersThatAreNotMoney(t *testing.T) {
	var in Interpreter
	out := in.Interpret("I'm a long-term investor with a 5-10 year horizon", PhaseCollectingAmount)

	assert.NoError(t, out.Clarify)
	_, ok := findCommand(out.Commands, KindSetInvestmentAmount)
	assert.False(t, ok)
	cmd, ok := findCommand(out.Commands, KindSetStrategy)
	require.True(t, ok)
	assert.Equal(t, "I'm a long-term investor with a 5-10 year horizon", cmd.Text)
}

func TestInterpret_NumbersOutsideAmountPhaseNeedACue(t *testing.T) {
	var in Interpreter
	out := in.Interpret("maybe 3 of them", PhaseCollectingStocks)
	_, ok := findCommand(out.Commands, KindSetInvestmentAmount)
	assert.False(t, ok)
}

func TestInterpret_Tickers(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		phase Phase
		kind  Kind
		want  []string
	}{
		{"lower-case list when asked", "aapl, msft", PhaseCollectingStocks, KindAddNewStocks, []string{"AAPL", "MSFT"}},
		{"sentence when asked", "Yes, I'd like to add aapl and msft", PhaseCollectingStocks, KindAddNewStocks, []string{"AAPL", "MSFT"}},
		{"upper-case with cue", "Please analyse AAPL, MSFT and TSLA", PhaseCollectingPortfolio, KindAddNewStocks, []string{"AAPL", "MSFT", "TSLA"}},
		{"cash-tag anywhere", "$TSLA looks interesting", PhaseCollectingEmail, KindAddNewStocks, []string{"TSLA"}},
		{"holdings", "I currently hold AAPL and GOOGL", PhaseCollectingPortfolio, KindAddExistingStocks, []string{"AAPL", "GOOGL"}},
		{"class shares", "add BRK.B", PhaseCollectingAmount, KindAddNewStocks, []string{"BRK.B"}},
		{"bare symbols before upload", "TSLA, NVDA", PhaseCollectingPortfolio, KindAddNewStocks, []string{"TSLA", "NVDA"}},
		{"bare symbols with filler", "TSLA and NVDA please", PhaseCollectingStrategy, KindAddNewStocks, []string{"TSLA", "NVDA"}},
	}

	var in Interpreter
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := in.Interpret(tt.text, tt.phase)
			cmd, ok := findCommand(out.Commands, tt.kind)
			require.True(t, ok, "expected %s", tt.kind)
			assert.Equal(t, tt.want, cmd.Tickers)
		})
	}
}

func TestInterpret_ProseIsNotTickers(t *testing.T) {
	var in Interpreter

	out := in.Interpret("please add apple and microsoft", PhaseCollectingStocks)
	_, ok := findCommand(out.Commands, KindAddNewStocks)
	assert.False(t, ok)

	out = in.Interpret("OK I will upload it", PhaseCollectingPortfolio)
	assert.Empty(t, out.Commands)

	// Outside the stocks question a bare list must be upper case symbols.
	for _, text := range []string{"tsla, nvda", "OK DONE", "50K", "hello"} {
		out = in.Interpret(text, PhaseCollectingEmail)
		_, ok = findCommand(out.Commands, KindAddNewStocks)
		assert.False(t, ok, text)
	}
}

func TestInterpret_Email(t *testing.T) {
	var in Interpreter

	out := in.Interpret("send it to jane.doe+reports@example.co.uk thanks", PhaseCollectingEmail)
	cmd, ok := findCommand(out.Commands, KindSetReceiverEmail)
	require.True(t, ok)
	assert.Equal(t, "jane.doe+reports@example.co.uk", cmd.Email)
	assert.NoError(t, out.Clarify)

	// Out of order: an email while the amount is being asked for.
	out = in.Interpret("jane@example.com", PhaseCollectingAmount)
	_, ok = findCommand(out.Commands, KindSetReceiverEmail)
	assert.True(t, ok)
	assert.NoError(t, out.Clarify)

	out = in.Interpret("jane@", PhaseCollectingEmail)
	assert.ErrorIs(t, out.Clarify, ErrMalformedEmail)
}

func TestInterpret_Strategy(t *testing.T) {
	var in Interpreter

	out := in.Interpret("no preference really", PhaseCollectingStrategy)
	cmd, ok := findCommand(out.Commands, KindSetStrategy)
	require.True(t, ok)
	assert.Equal(t, "no preference really", cmd.Text)

	out = in.Interpret("Balanced mix of growth and dividend stocks", PhaseCollectingStrategy)
	cmd, ok = findCommand(out.Commands, KindSetStrategy)
	require.True(t, ok)
	assert.Equal(t, "Balanced mix of growth and dividend stocks", cmd.Text)
	_, ok = findCommand(out.Commands, KindAddNewStocks)
	assert.False(t, ok)

	// An amount given while strategy is asked is not mistaken for strategy.
	out = in.Interpret("$20,000", PhaseCollectingStrategy)
	_, ok = findCommand(out.Commands, KindSetStrategy)
	assert.False(t, ok)
}

func TestRead_KeepsStoredStrategy(t *testing.T) {
	var in Interpreter
	state := NewState()
	_, _ = state.StoreDiversificationPreference("I want moderate risk with tech focus")

	out := in.Read("I'd like to add some dividend stocks like KO and PEP", state)
	_, ok := findCommand(out.Commands, KindSetStrategy)
	assert.False(t, ok)
	cmd, ok := findCommand(out.Commands, KindAddNewStocks)
	require.True(t, ok)
	assert.Equal(t, []string{"KO", "PEP"}, cmd.Tickers)

	out = in.Read("Please change my strategy to conservative income", state)
	cmd, ok = findCommand(out.Commands, KindSetStrategy)
	require.True(t, ok)
	assert.Equal(t, "Please change my strategy to conservative income", cmd.Text)

	// Without a stored strategy cue words still capture it.
	out = in.Read("long-term growth", NewState())
	_, ok = findCommand(out.Commands, KindSetStrategy)
	assert.True(t, ok)
}

func TestInterpret_Empty(t *testing.T) {
	var in Interpreter
	out := in.Interpret("   ", PhaseCollectingAmount)
	assert.Empty(t, out.Commands)
	assert.NoError(t, out.Clarify)
}
