package session

import (
	"encoding/json"
	"sync"
)

// Context is the identity and configuration of one messaging session.
type Context struct {
	OrganizationID          string          `json:"organizationId,omitempty"`
	DeploymentDeveloperName string          `json:"deploymentDeveloperName,omitempty"`
	MessagingBaseURL        string          `json:"messagingBaseUrl,omitempty"`
	AccessToken             string          `json:"-"`
	LastEventID             string          `json:"lastEventId,omitempty"`
	DeploymentConfiguration json.RawMessage `json:"deploymentConfiguration,omitempty"`
	ConversationID          string          `json:"conversationId,omitempty"`
}

// Store holds the Context for a single engine. Reads always observe the most
// recently completed write.
type Store struct {
	mu  sync.RWMutex
	ctx Context
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) OrganizationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.OrganizationID
}

func (s *Store) SetOrganizationID(id string) {
	s.mu.Lock()
	s.ctx.OrganizationID = id
	s.mu.Unlock()
}

func (s *Store) DeploymentDeveloperName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.DeploymentDeveloperName
}

func (s *Store) SetDeploymentDeveloperName(name string) {
	s.mu.Lock()
	s.ctx.DeploymentDeveloperName = name
	s.mu.Unlock()
}

func (s *Store) MessagingBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.MessagingBaseURL
}

func (s *Store) SetMessagingBaseURL(url string) {
	s.mu.Lock()
	s.ctx.MessagingBaseURL = url
	s.mu.Unlock()
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.AccessToken
}

func (s *Store) SetAccessToken(token string) {
	s.mu.Lock()
	s.ctx.AccessToken = token
	s.mu.Unlock()
}

func (s *Store) LastEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.LastEventID
}

func (s *Store) SetLastEventID(id string) {
	s.mu.Lock()
	s.ctx.LastEventID = id
	s.mu.Unlock()
}

func (s *Store) DeploymentConfiguration() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRaw(s.ctx.DeploymentConfiguration)
}

func (s *Store) SetDeploymentConfiguration(cfg json.RawMessage) {
	s.mu.Lock()
	s.ctx.DeploymentConfiguration = cloneRaw(cfg)
	s.mu.Unlock()
}

func (s *Store) ConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx.ConversationID
}

func (s *Store) SetConversationID(id string) {
	s.mu.Lock()
	s.ctx.ConversationID = id
	s.mu.Unlock()
}

// Snapshot returns a copy of every field.
func (s *Store) Snapshot() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.ctx
	c.DeploymentConfiguration = cloneRaw(s.ctx.DeploymentConfiguration)
	return c
}

// Clear resets every field. Calling it repeatedly is harmless.
func (s *Store) Clear() {
	s.mu.Lock()
	s.ctx = Context{}
	s.mu.Unlock()
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
