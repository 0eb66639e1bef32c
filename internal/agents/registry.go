package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"finance-a2a-backend/pkg/logger"
)

var ErrAgentNotFound = errors.New("remote agent not found")

// Connection is a resolved remote agent.
type Connection struct {
	Card       AgentCard
	URL        string
	Client     *A2AClient
	ResolvedAt time.Time
}

// Registry maps agent card names to their connections.
type Registry struct {
	mu              sync.RWMutex
	connections     map[string]*Connection
	urls            []string
	resolver        *CardResolver
	dispatchTimeout time.Duration
	log             *logger.Logger
}

// NewRegistry creates a registry for the agents served at urls. Nothing is
// contacted until Refresh.
func NewRegistry(urls []string, cardTimeout, dispatchTimeout time.Duration) *Registry {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			cleaned = append(cleaned, strings.TrimRight(u, "/"))
		}
	}
	return &Registry{
		connections:     make(map[string]*Connection),
		urls:            cleaned,
		resolver:        NewCardResolver(cardTimeout),
		dispatchTimeout: dispatchTimeout,
		log:             logger.Get().With("component", "agent_registry"),
	}
}

// Register adds a connection for card at url.
func (r *Registry) Register(card AgentCard, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.connections[card.Name]; exists {
		r.log.Warnw("Agent already registered; overwriting", "agent", card.Name, "url", url)
	}
	r.connections[card.Name] = &Connection{
		Card:       card,
		URL:        url,
		Client:     NewA2AClient(url, r.dispatchTimeout),
		ResolvedAt: time.Now().UTC(),
	}
	r.log.Infow("Registered remote agent", "agent", card.Name, "url", url)
}

// Refresh resolves every configured URL. Unreachable agents are logged and
// skipped; already registered connections for them are kept. It returns
// the number of agents resolved.
func (r *Registry) Refresh(ctx context.Context) int {
	resolved := 0
	for _, url := range r.urls {
		card, err := r.resolver.Resolve(ctx, url)
		if err != nil {
			r.log.Warnw("Failed to resolve agent card", "url", url, "error", err)
			continue
		}
		r.Register(*card, url)
		resolved++
	}
	r.log.Infow("Agent registry refreshed", "resolved", resolved, "configured", len(r.urls))
	return resolved
}

// Get returns the connection for the agent whose card is named name.
func (r *Registry) Get(name string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return conn, nil
}

// List returns all connections ordered by name.
func (r *Registry) List() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.connections))
	for _, c := range r.connections {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Card.Name < out[j].Card.Name })
	return out
}

// Check re-fetches the card of a registered agent to confirm it still
// answers.
func (r *Registry) Check(ctx context.Context, name string) (*AgentCard, error) {
	conn, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return r.resolver.Resolve(ctx, conn.URL)
}
