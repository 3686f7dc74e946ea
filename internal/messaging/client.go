package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"messaging-client/internal/dto"
	"messaging-client/internal/model"
	"messaging-client/internal/transport"
)

const (
	pathUnauthenticatedToken = "/iamessage/api/v2/authorization/unauthenticated/access-token"
	pathContinuationToken    = "/iamessage/api/v2/authorization/continuation-access-token"
	pathConversation         = "/iamessage/api/v2/conversation"
	pathConversationList     = "/iamessage/api/v2/conversation/list"
	pathEventRouter          = "/eventrouter/v1/sse"
)

// Session is the slice of the session store the REST calls read.
type Session interface {
	transport.Session
	OrganizationID() string
	DeploymentDeveloperName() string
}

// Client exposes one method per messaging endpoint.
type Client struct {
	session Session
	http    *transport.Client
	newID   func() string
}

func New(session Session, opts ...transport.Option) *Client {
	return &Client{
		session: session,
		http:    transport.New(session, opts...),
		newID:   uuid.NewString,
	}
}

// EventRouterURL is the SSE endpoint for base.
func EventRouterURL(base string) string {
	return strings.TrimRight(base, "/") + pathEventRouter
}

func conversationPath(conversationID string, suffix ...string) string {
	p := pathConversation + "/" + url.PathEscape(conversationID)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func (c *Client) UnauthenticatedAccessToken(ctx context.Context) (*dto.AccessTokenResponse, error) {
	var out dto.AccessTokenResponse
	err := c.http.Do(ctx, transport.Request{
		Op:        "unauthenticated_access_token",
		Method:    http.MethodPost,
		Path:      pathUnauthenticatedToken,
		Anonymous: true,
		Body: dto.UnauthenticatedAccessTokenRequest{
			OrgID:               c.session.OrganizationID(),
			ESDeveloperName:     c.session.DeploymentDeveloperName(),
			CapabilitiesVersion: model.AppCapabilitiesVersion,
			Platform:            model.AppPlatform,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("messaging: access token response without accessToken")
	}
	return &out, nil
}

// ContinuationAccessToken exchanges token, which may not be stored yet, for a
// new token with the same subject.
func (c *Client) ContinuationAccessToken(ctx context.Context, token string) (*dto.AccessTokenResponse, error) {
	var out dto.AccessTokenResponse
	err := c.http.Do(ctx, transport.Request{
		Op:     "continuation_access_token",
		Method: http.MethodGet,
		Path:   pathContinuationToken,
		Token:  token,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.New("messaging: continuation response without accessToken")
	}
	return &out, nil
}

func (c *Client) CreateConversation(ctx context.Context, conversationID string, routingAttributes map[string]string) error {
	return c.http.Do(ctx, transport.Request{
		Op:     "create_conversation",
		Method: http.MethodPost,
		Path:   pathConversation,
		Body: dto.CreateConversationRequest{
			ConversationID:    conversationID,
			ESDeveloperName:   c.session.DeploymentDeveloperName(),
			RoutingAttributes: routingAttributes,
		},
	}, nil)
}

func (c *Client) ListConversations(ctx context.Context, includeClosed bool, limit int) (*dto.ListConversationsResponse, error) {
	if limit <= 0 {
		limit = model.ListConversationsLimit
	}
	var out dto.ListConversationsResponse
	err := c.http.Do(ctx, transport.Request{
		Op:     "list_conversations",
		Method: http.MethodGet,
		Path:   pathConversationList,
		Query: url.Values{
			"inclClosedConvs": []string{strconv.FormatBool(includeClosed)},
			"limit":           []string{strconv.Itoa(limit)},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type EntriesQuery struct {
	Limit           int
	StartTimestamp  int64
	EndTimestamp    int64
	Direction       string
	EntryTypeFilter []model.EntryType
}

func (q EntriesQuery) values() url.Values {
	v := url.Values{}
	limit := q.Limit
	if limit <= 0 {
		limit = model.ListEntriesLimit
	}
	v.Set("limit", strconv.Itoa(limit))
	if q.StartTimestamp > 0 {
		v.Set("startTimestamp", strconv.FormatInt(q.StartTimestamp, 10))
	}
	if q.EndTimestamp > 0 {
		v.Set("endTimestamp", strconv.FormatInt(q.EndTimestamp, 10))
	}
	if q.Direction != "" {
		v.Set("direction", q.Direction)
	}
	if len(q.EntryTypeFilter) > 0 {
		types := make([]string, 0, len(q.EntryTypeFilter))
		for _, t := range q.EntryTypeFilter {
			types = append(types, string(t))
		}
		v.Set("entryTypeFilter", strings.Join(types, ","))
	}
	return v
}

// ListConversationEntries returns the raw entries, newest first.
func (c *Client) ListConversationEntries(ctx context.Context, conversationID string, q EntriesQuery) ([]json.RawMessage, error) {
	var out dto.ListConversationEntriesResponse
	err := c.http.Do(ctx, transport.Request{
		Op:     "list_conversation_entries",
		Method: http.MethodGet,
		Path:   conversationPath(conversationID, "entries"),
		Query:  q.values(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.ConversationEntries, nil
}

type OutgoingMessage struct {
	ID                    string
	Text                  string
	InReplyToMessageID    string
	IsNewMessagingSession bool
	RoutingAttributes     map[string]string
	Language              string
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, msg OutgoingMessage) error {
	if msg.ID == "" {
		msg.ID = c.newID()
	}
	return c.http.Do(ctx, transport.Request{
		Op:     "send_message",
		Method: http.MethodPost,
		Path:   conversationPath(conversationID, "message"),
		Body: dto.SendMessageRequest{
			Message: dto.MessagePayload{
				ID:          msg.ID,
				MessageType: string(model.MessageTypeStaticContent),
				StaticContent: dto.StaticContent{
					FormatType: string(model.FormatTypeText),
					Text:       msg.Text,
				},
				InReplyToMessageID: msg.InReplyToMessageID,
			},
			RoutingAttributes:     msg.RoutingAttributes,
			IsNewMessagingSession: msg.IsNewMessagingSession,
			ESDeveloperName:       c.session.DeploymentDeveloperName(),
			Language:              msg.Language,
		},
	}, nil)
}

// SendTypingIndicator posts a TypingStartedIndicator or TypingStoppedIndicator
// entry.
func (c *Client) SendTypingIndicator(ctx context.Context, conversationID string, entryType model.EntryType) error {
	if entryType != model.EntryTypeTypingStartedIndicator && entryType != model.EntryTypeTypingStoppedIndicator {
		return errors.New("messaging: not a typing indicator entry type: " + string(entryType))
	}
	return c.http.Do(ctx, transport.Request{
		Op:     "send_typing_indicator",
		Method: http.MethodPost,
		Path:   conversationPath(conversationID, "entry"),
		Body: dto.TypingIndicatorRequest{
			EntryType: string(entryType),
			ID:        c.newID(),
		},
	}, nil)
}

func (c *Client) CloseConversation(ctx context.Context, conversationID string) error {
	return c.http.Do(ctx, transport.Request{
		Op:     "close_conversation",
		Method: http.MethodDelete,
		Path:   conversationPath(conversationID),
		Query:  url.Values{"esDeveloperName": []string{c.session.DeploymentDeveloperName()}},
	}, nil)
}
