package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finance-a2a-backend/internal/crypto"
	"finance-a2a-backend/internal/metrics"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
	"finance-a2a-backend/pkg/logger"
)

// HostAgentName keys the host agent's row in agent_states.
const HostAgentName = "host_agent"

// ErrSessionBusy is returned when the per-session lock cannot be taken
// before the context expires.
var ErrSessionBusy = errors.New("session is busy")

// Locker serialises turns of the same session.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Dispatcher hands a completed request to the stock analysis agent. It
// returns once the agent has acknowledged receipt, not when the analysis is
// done.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DelegationRequest) (*DelegationReceipt, error)
}

// QuotaChecker limits how many reports a user may request. remaining < 0
// means unlimited.
type QuotaChecker interface {
	RemainingReports(ctx context.Context, userID string) (remaining int, limit int, err error)
}

// Notifier is told about successful dispatches (e.g. to email a receipt).
// It is called after the session lock is released.
type Notifier interface {
	NotifyDispatched(ctx context.Context, req DelegationRequest) error
}

// SessionReader re-reads the session row once the turn holds the lock.
type SessionReader interface {
	GetSession(ctx context.Context, sessionID string) (*models.ConversationSession, error)
}

// DelegationRequest is everything the stock analysis agent needs.
type DelegationRequest struct {
	SessionID        string
	UserID           string
	InvestmentAmount Amount
	Strategy         string
	ExistingStocks   []string
	NewStocks        []string
	Tickers          []string
	ReceiverEmail    string
}

// DelegationReceipt is the remote agent's acknowledgment.
type DelegationReceipt struct {
	TaskID string
	Status string
}

// TaskText renders the request as the natural-language task sent to the
// remote agent.
func (r DelegationRequest) TaskText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyse the following stocks for an investment of %s: %s.\n", r.InvestmentAmount, strings.Join(r.Tickers, ", "))
	if len(r.ExistingStocks) > 0 {
		fmt.Fprintf(&b, "Existing portfolio stocks: %s.\n", strings.Join(r.ExistingStocks, ", "))
	}
	if len(r.NewStocks) > 0 {
		fmt.Fprintf(&b, "New stocks of interest: %s.\n", strings.Join(r.NewStocks, ", "))
	}
	fmt.Fprintf(&b, "Investment strategy and diversification preference: %s\n", r.Strategy)
	fmt.Fprintf(&b, "Send the final report to: %s", r.ReceiverEmail)
	return b.String()
}

// EngineDeps wires an Engine. Sessions, Quota, Notifier and Sealer are
// optional.
type EngineDeps struct {
	States          store.AgentStateStore
	Sessions        SessionReader
	Dispatcher      Dispatcher
	Locker          Locker
	Quota           QuotaChecker
	Notifier        Notifier
	Sealer          *crypto.Sealer
	DispatchTimeout time.Duration
	NotifyTimeout   time.Duration
	Now             func() time.Time
}

// Engine runs conversation turns: lock, load, mutate, gate, dispatch, save.
type Engine struct {
	deps        EngineDeps
	interpreter Interpreter
	log         *logger.Logger
}

// NewEngine creates an Engine.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.DispatchTimeout <= 0 {
		deps.DispatchTimeout = 30 * time.Second
	}
	if deps.NotifyTimeout <= 0 {
		deps.NotifyTimeout = 10 * time.Second
	}
	return &Engine{
		deps: deps,
		log:  logger.Get().With("component", "dialogue_engine"),
	}
}

// TurnInput is one user message in a session.
type TurnInput struct {
	Session *models.ConversationSession
	UserID  string
	Message string
}

// TurnResult is the host agent's answer.
type TurnResult struct {
	Reply      string
	Phase      Phase
	IsComplete bool
	// Dispatched is true only on the turn that performed the delegation.
	Dispatched bool
}

// Turn processes one message.
func (e *Engine) Turn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	start := e.deps.Now()
	sessionID := in.Session.ID

	unlock, err := e.deps.Locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionBusy, err)
	}
	release := sync.OnceFunc(unlock)
	defer release()

	log := e.log.With("session_id", sessionID, "user_id", in.UserID)
	state := e.LoadState(ctx, sessionID)
	state.PortfolioUploaded = e.portfolioUploaded(ctx, in.Session)

	result := &TurnResult{}
	if state.Dispatched() {
		result.Reply = promptFor(state)
		result.Phase = PhaseDispatched
		result.IsComplete = true
		e.SaveState(ctx, sessionID, state)
		return result, nil
	}

	interp := e.interpreter.Read(in.Message, state)
	var acks []string
	clarifyErr := interp.Clarify
	for _, cmd := range interp.Commands {
		outcome, err := Apply(state, cmd)
		if err != nil {
			log.Infow("Command rejected", "command", cmd.Kind.String(), "error", err)
			if clarifyErr == nil {
				clarifyErr = err
			}
			continue
		}
		if outcome.Changed {
			log.Debugw("Command applied", "command", cmd.Kind.String())
			acks = append(acks, acknowledge(outcome))
		}
	}

	// The email is the last fact asked for; once it is known every turn
	// re-evaluates the gate until delegation succeeds.
	var reply string
	var sent *DelegationRequest
	if state.ReceiverEmail != "" && state.CheckPrerequisites() {
		reply, sent = e.triggerDelegation(ctx, in.UserID, sessionID, state)
		result.Dispatched = sent != nil
	}

	if reply == "" {
		clarify := clarification(clarifyErr)
		prompt := ""
		if clarify == "" {
			prompt = promptFor(state)
		}
		reply = composeReply(acks, clarify, prompt)
	} else if len(acks) > 0 && !result.Dispatched {
		reply = composeReply(acks, "", reply)
	}

	e.SaveState(ctx, sessionID, state)
	release()
	if sent != nil {
		e.notify(ctx, *sent)
	}

	result.Reply = reply
	result.Phase = state.Phase()
	result.IsComplete = state.Dispatched()
	metrics.TurnsTotal.WithLabelValues(string(result.Phase)).Inc()
	metrics.TurnDuration.Observe(e.deps.Now().Sub(start).Seconds())
	return result, nil
}

// portfolioUploaded reads the upload flag after the lock is taken, so an
// upload recorded while the turn waited is not missed. The caller's copy
// of the session is used when no reader is wired or the read fails.
func (e *Engine) portfolioUploaded(ctx context.Context, session *models.ConversationSession) bool {
	if e.deps.Sessions == nil {
		return session.PortfolioStatementUploaded
	}
	fresh, err := e.deps.Sessions.GetSession(ctx, session.ID)
	if err != nil {
		e.log.Warnw("Failed to re-read session; using caller's copy", "session_id", session.ID, "error", err)
		return session.PortfolioStatementUploaded
	}
	return fresh.PortfolioStatementUploaded
}

// notify sends the dispatch receipt, bounded by NotifyTimeout. Failures are
// logged only.
func (e *Engine) notify(ctx context.Context, req DelegationRequest) {
	if e.deps.Notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.deps.NotifyTimeout)
	defer cancel()
	if err := e.deps.Notifier.NotifyDispatched(nctx, req); err != nil {
		e.log.Warnw("Dispatch notification failed", "session_id", req.SessionID, "error", err)
	}
}

// ApplyPortfolio records an analysed portfolio upload: the session is marked
// uploaded and the extracted tickers join the existing-stocks set. It
// returns the tickers that were new.
func (e *Engine) ApplyPortfolio(ctx context.Context, sessionID string, tickers []string) ([]string, error) {
	unlock, err := e.deps.Locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionBusy, err)
	}
	defer unlock()

	state := e.LoadState(ctx, sessionID)
	if _, err := Apply(state, Command{Kind: KindMarkPortfolioUploaded}); err != nil {
		return nil, err
	}
	outcome, err := Apply(state, Command{Kind: KindAddExistingStocks, Tickers: tickers})
	if err != nil {
		return nil, err
	}
	e.SaveState(ctx, sessionID, state)
	return outcome.Added, nil
}

// triggerDelegation dispatches the collected request and returns the reply,
// plus the request when it was delivered. On failure the state stays
// pre-dispatch so the next turn retries.
func (e *Engine) triggerDelegation(ctx context.Context, userID, sessionID string, state *State) (string, *DelegationRequest) {
	log := e.log.With("session_id", sessionID, "user_id", userID)

	if e.deps.Quota != nil {
		remaining, limit, err := e.deps.Quota.RemainingReports(ctx, userID)
		if err != nil {
			log.Warnw("Quota check failed; allowing dispatch", "error", err)
		} else if remaining == 0 {
			metrics.Dispatches.WithLabelValues("stock_analyser", "quota_exceeded").Inc()
			return fmt.Sprintf(quotaExceededReply, limit), nil
		}
	}

	req := DelegationRequest{
		SessionID:        sessionID,
		UserID:           userID,
		InvestmentAmount: *state.InvestmentAmount,
		Strategy:         state.Strategy,
		ExistingStocks:   append([]string(nil), state.ExistingStocks...),
		NewStocks:        append([]string(nil), state.NewStocks...),
		Tickers:          state.AllTickers(),
		ReceiverEmail:    state.ReceiverEmail,
	}

	dctx, cancel := context.WithTimeout(ctx, e.deps.DispatchTimeout)
	defer cancel()

	state.DispatchAttempts++
	start := e.deps.Now()
	receipt, err := e.deps.Dispatcher.Dispatch(dctx, req)
	metrics.DispatchLatency.WithLabelValues("stock_analyser").Observe(e.deps.Now().Sub(start).Seconds())
	if err != nil {
		state.LastDispatchError = err.Error()
		metrics.Dispatches.WithLabelValues("stock_analyser", "error").Inc()
		log.Errorw("Delegation to stock analyser failed", "attempt", state.DispatchAttempts, "error", err)
		return dispatchFailedReply, nil
	}

	now := e.deps.Now().UTC()
	state.DispatchedAt = &now
	state.LastDispatchError = ""
	if receipt != nil {
		state.TaskID = receipt.TaskID
	}
	metrics.Dispatches.WithLabelValues("stock_analyser", "success").Inc()
	log.Infow("Delegated analysis request", "task_id", state.TaskID, "tickers", req.Tickers)
	return fmt.Sprintf(DispatchedReply, state.ReceiverEmail), &req
}

// LoadState reads the session's state blob. A missing row, a read error
// or an undecodable blob all yield defaults; errors are logged only.
func (e *Engine) LoadState(ctx context.Context, sessionID string) *State {
	row, err := e.deps.States.GetAgentState(ctx, sessionID, HostAgentName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			metrics.StatePersistenceErrors.WithLabelValues("load").Inc()
			e.log.Errorw("Failed to load agent state; using defaults", "session_id", sessionID, "error", err)
		}
		return NewState()
	}

	state, err := e.decode(row.StateData)
	if err != nil {
		metrics.StatePersistenceErrors.WithLabelValues("decode").Inc()
		e.log.Errorw("Failed to decode agent state; using defaults", "session_id", sessionID, "error", err)
		return NewState()
	}
	return state
}

// SaveState upserts the session's state blob. Errors are logged, never
// returned: the in-memory state already answered this turn.
func (e *Engine) SaveState(ctx context.Context, sessionID string, state *State) {
	data, err := e.encode(state)
	if err != nil {
		metrics.StatePersistenceErrors.WithLabelValues("save").Inc()
		e.log.Errorw("Failed to encode agent state", "session_id", sessionID, "error", err)
		return
	}

	// Persist even if the client has gone away.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.deps.States.UpsertAgentState(sctx, sessionID, HostAgentName, data); err != nil {
		metrics.StatePersistenceErrors.WithLabelValues("save").Inc()
		e.log.Errorw("Failed to save agent state", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) encode(state *State) (string, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return e.deps.Sealer.Seal(string(raw))
}

func (e *Engine) decode(data string) (*State, error) {
	plain, err := e.deps.Sealer.Open(data)
	if err != nil {
		return nil, err
	}
	state := NewState()
	if err := json.Unmarshal([]byte(plain), state); err != nil {
		return nil, err
	}
	if state.ExistingStocks == nil {
		state.ExistingStocks = TickerSet{}
	}
	if state.NewStocks == nil {
		state.NewStocks = TickerSet{}
	}
	return state, nil
}
