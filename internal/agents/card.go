// Package agents connects the host to remote agents over the A2A protocol:
// agent card discovery, JSON-RPC message delivery and a registry keyed by
// card name.
package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// WellKnownCardPath is where an A2A agent publishes its card.
const WellKnownCardPath = "/.well-known/agent.json"

var ErrInvalidCard = errors.New("invalid agent card")

// AgentSkill is one capability advertised on a card.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCard is the self-description an A2A agent serves.
type AgentCard struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Version     string       `json:"version"`
	Skills      []AgentSkill `json:"skills"`
}

// SkillNames lists the card's skill names, falling back to ids.
func (c AgentCard) SkillNames() []string {
	names := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		if s.Name != "" {
			names = append(names, s.Name)
		} else {
			names = append(names, s.ID)
		}
	}
	return names
}

// CardResolver fetches agent cards.
type CardResolver struct {
	client *resty.Client
}

// NewCardResolver creates a resolver with the given per-request timeout.
func NewCardResolver(timeout time.Duration) *CardResolver {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return &CardResolver{client: client}
}

// Resolve reads the card served at baseURL.
func (r *CardResolver) Resolve(ctx context.Context, baseURL string) (*AgentCard, error) {
	var card AgentCard
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&card).
		Get(strings.TrimRight(baseURL, "/") + WellKnownCardPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card from %s: %w", baseURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("agent card request to %s returned %d", baseURL, resp.StatusCode())
	}
	if strings.TrimSpace(card.Name) == "" {
		return nil, fmt.Errorf("%w: %s serves a card without a name", ErrInvalidCard, baseURL)
	}
	return &card, nil
}
