package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/internal/store"
)

// memStore is an in-memory store.Store for service tests.
type memStore struct {
	mu        sync.Mutex
	now       time.Time
	users     map[string]*models.User
	sessions  map[string]*models.ConversationSession
	messages  []models.ConversationMessage
	states    map[string]string
	analyses  []models.PortfolioAnalysis
	recs      map[string]*models.StockRecommendation
	whitelist map[string]*models.UserWhitelist
	seq       int
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		now:       time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		users:     map[string]*models.User{},
		sessions:  map[string]*models.ConversationSession{},
		states:    map[string]string{},
		recs:      map[string]*models.StockRecommendation{},
		whitelist: map[string]*models.UserWhitelist{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateUser(_ context.Context, arg store.CreateUserParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[arg.ID]; ok {
		return nil, store.ErrConflict
	}
	u := &models.User{ID: arg.ID, Email: arg.Email, Name: arg.Name, PaidUser: arg.PaidUser, CountryCode: "+1", CreatedAt: m.now, UpdatedAt: m.now}
	m.users[arg.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateUser(_ context.Context, arg store.UpdateUserParams) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[arg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if arg.Email != nil {
		for id, other := range m.users {
			if id != arg.ID && other.Email != nil && *other.Email == *arg.Email {
				return nil, store.ErrConflict
			}
		}
		u.Email = arg.Email
	}
	if arg.Name != nil {
		u.Name = arg.Name
	}
	if arg.ContactNumber != nil {
		u.ContactNumber = arg.ContactNumber
	}
	if arg.CountryCode != nil {
		u.CountryCode = *arg.CountryCode
	}
	if arg.PaidUser != nil {
		u.PaidUser = *arg.PaidUser
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) ReassignUserID(_ context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[oldID]
	if !ok {
		return store.ErrNotFound
	}
	delete(m.users, oldID)
	u.ID = newID
	m.users[newID] = u
	for _, s := range m.sessions {
		if s.UserID == oldID {
			s.UserID = newID
		}
	}
	for i := range m.messages {
		if m.messages[i].UserID == oldID {
			m.messages[i].UserID = newID
		}
	}
	return nil
}

func (m *memStore) CountUserMessages(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.UserID == userID && msg.MessageType == models.MessageTypeUser {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetUserStats(_ context.Context, userID string, now time.Time) (*models.UserStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.UserStats{}
	for _, msg := range m.messages {
		if msg.UserID != userID {
			continue
		}
		stats.TotalMessages++
		if msg.MessageType == models.MessageTypeUser {
			stats.UserMessages++
		}
		if now.Sub(msg.Timestamp) <= 24*time.Hour {
			stats.MessagesLast24h++
		}
	}
	for _, s := range m.sessions {
		if s.UserID == userID {
			stats.TotalSessions++
			if s.IsActive {
				stats.ActiveSessions++
			}
		}
	}
	if stats.TotalSessions > 0 {
		stats.AvgMessagesPerSession = float64(stats.TotalMessages) / float64(stats.TotalSessions)
	}
	return stats, nil
}

func (m *memStore) CreateSession(_ context.Context, id, userID string) (*models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.ConversationSession{ID: id, UserID: userID, IsActive: true, CreatedAt: m.now, UpdatedAt: m.now}
	m.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListSessionsByUser(_ context.Context, userID string, limit int) ([]models.ConversationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ConversationSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) TouchSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.UpdatedAt = m.now
		return nil
	}
	return store.ErrNotFound
}

func (m *memStore) CloseSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.IsActive = false
	return nil
}

func (m *memStore) MarkPortfolioUploaded(_ context.Context, id string, format models.InputFormat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.IsActive {
		return store.ErrNotFound
	}
	s.PortfolioStatementUploaded = true
	s.InputFormat = &format
	return nil
}

func (m *memStore) AddMessage(_ context.Context, arg store.AddMessageParams) (*models.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := models.ConversationMessage{
		ID:          m.nextID("msg"),
		SessionID:   arg.SessionID,
		UserID:      arg.UserID,
		MessageType: arg.MessageType,
		Content:     arg.Content,
		AgentName:   arg.AgentName,
		Timestamp:   m.now,
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memStore) ListMessages(_ context.Context, sessionID string, limit int) ([]models.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ConversationMessage
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) GetAgentState(_ context.Context, sessionID, agentName string) (*models.AgentState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.states[sessionID+"/"+agentName]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.AgentState{SessionID: sessionID, AgentName: agentName, StateData: data}, nil
}

func (m *memStore) UpsertAgentState(_ context.Context, sessionID, agentName, stateData string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[sessionID+"/"+agentName] = stateData
	return nil
}

func (m *memStore) CreatePortfolioAnalysis(_ context.Context, arg store.CreatePortfolioAnalysisParams) (*models.PortfolioAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	format := arg.InputFormat
	a := models.PortfolioAnalysis{
		ID:               m.nextID("analysis"),
		SessionID:        arg.SessionID,
		UserID:           arg.UserID,
		AnalysisData:     arg.AnalysisData,
		ExtractedTickers: arg.ExtractedTickers,
		InputFormat:      &format,
		CreatedAt:        m.now,
	}
	m.analyses = append(m.analyses, a)
	return &a, nil
}

func (m *memStore) CreateStockRecommendation(_ context.Context, arg store.CreateStockRecommendationParams) (*models.StockRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[arg.SessionID]; ok {
		return nil, store.ErrConflict
	}
	r := &models.StockRecommendation{
		ID:                 m.nextID("rec"),
		SessionID:          arg.SessionID,
		UserID:             arg.UserID,
		RecommendationData: arg.RecommendationData,
		InvestmentAmount:   arg.InvestmentAmount,
		EmailID:            arg.EmailID,
		CreatedAt:          m.now,
	}
	m.recs[arg.SessionID] = r
	return r, nil
}

func (m *memStore) CountStockRecommendationsByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recs {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetWhitelistEntry(_ context.Context, email string) (*models.UserWhitelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.whitelist[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) UpsertWhitelistEntry(_ context.Context, arg store.UpsertWhitelistParams) (*models.UserWhitelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.whitelist[arg.Email]
	if !ok {
		w = &models.UserWhitelist{Email: arg.Email, CreatedAt: m.now}
		m.whitelist[arg.Email] = w
	}
	w.IsWhitelisted = arg.IsWhitelisted
	w.MaxReports = arg.MaxReports
	w.UpdatedAt = m.now
	cp := *w
	return &cp, nil
}

func (m *memStore) DeleteWhitelistEntry(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.whitelist[email]; !ok {
		return store.ErrNotFound
	}
	delete(m.whitelist, email)
	return nil
}

func (m *memStore) ListWhitelist(context.Context) ([]models.UserWhitelist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.UserWhitelist, 0, len(m.whitelist))
	for _, w := range m.whitelist {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
