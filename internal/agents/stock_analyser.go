package agents

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"finance-a2a-backend/internal/dialogue"
)

var _ dialogue.Dispatcher = (*StockAnalyser)(nil)

// StockAnalyser delivers completed requests to the stock analysis agent.
type StockAnalyser struct {
	registry *Registry
	name     string
}

// NewStockAnalyser dispatches through the registry entry named name.
func NewStockAnalyser(registry *Registry, name string) *StockAnalyser {
	return &StockAnalyser{registry: registry, name: name}
}

// dispatchNamespace scopes the message ids derived from session ids.
var dispatchNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("finance-a2a-backend/stock-analysis"))

// DispatchMessageID is the A2A message id used for a session's analysis
// request. It is the same on every attempt so a retry after a lost
// acknowledgment is recognisable as a duplicate.
func DispatchMessageID(sessionID string) string {
	return strings.ReplaceAll(uuid.NewSHA1(dispatchNamespace, []byte(sessionID)).String(), "-", "")
}

// Dispatch sends the request's task text, using the session id as the A2A
// context id. If the agent was unreachable at startup the registry is
// refreshed once before giving up.
func (s *StockAnalyser) Dispatch(ctx context.Context, req dialogue.DelegationRequest) (*dialogue.DelegationReceipt, error) {
	conn, err := s.registry.Get(s.name)
	if errors.Is(err, ErrAgentNotFound) {
		s.registry.Refresh(ctx)
		conn, err = s.registry.Get(s.name)
	}
	if err != nil {
		return nil, err
	}

	res, err := conn.Client.SendMessage(ctx, req.TaskText(), req.SessionID, DispatchMessageID(req.SessionID))
	if err != nil {
		return nil, err
	}
	return &dialogue.DelegationReceipt{TaskID: res.TaskID, Status: res.State}, nil
}
