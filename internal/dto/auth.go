package dto

import "encoding/json"

type UnauthenticatedAccessTokenRequest struct {
	OrgID               string `json:"orgId"`
	ESDeveloperName     string `json:"esDeveloperName"`
	CapabilitiesVersion string `json:"capabilitiesVersion"`
	Platform            string `json:"platform"`
}

type AccessTokenResponse struct {
	AccessToken string              `json:"accessToken"`
	LastEventID EventID             `json:"lastEventId,omitempty"`
	Context     *AccessTokenContext `json:"context,omitempty"`
}

type AccessTokenContext struct {
	Configuration *AccessTokenConfiguration `json:"configuration,omitempty"`
}

type AccessTokenConfiguration struct {
	EmbeddedServiceConfig json.RawMessage `json:"embeddedServiceConfig,omitempty"`
}

// DeploymentConfiguration returns the embedded service configuration carried
// by the token response, or nil when the server omitted it.
func (r *AccessTokenResponse) DeploymentConfiguration() json.RawMessage {
	if r == nil || r.Context == nil || r.Context.Configuration == nil {
		return nil
	}
	return r.Context.Configuration.EmbeddedServiceConfig
}
