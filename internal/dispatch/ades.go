// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ADESCredentials configures how the ADES dispatcher re-authenticates
// once a provider returns 401/403: either an OAuth2 client-credentials
// or resource-owner-password grant against the provider's token
// endpoint, or a bearer forwarded from the request that triggered the
// job in the first place.
type ADESCredentials struct {
	WSO2Hostname string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	// ForwardedAuthHeader, when non-empty, is tried before acquiring a
	// token of our own: some deployments expect the caller's own bearer
	// to be relayed rather than minted fresh.
	ForwardedAuthHeader string
}

// ADESDispatcher wraps OAPDispatcher with deploy-if-absent: before
// dispatching, it checks whether the target process is already deployed
// on the ADES and deploys it (public visibility) if not.
type ADESDispatcher struct {
	*OAPDispatcher

	DeployBody json.RawMessage
	Creds      ADESCredentials
}

// NewADESDispatcher constructs an ADES dispatcher that deploys deployBody
// under processID on providerBase before executing, if not already present.
func NewADESDispatcher(base Base, providerBase, processID string, deployBody json.RawMessage, creds ADESCredentials) *ADESDispatcher {
	oap := NewOAPDispatcher(base, providerBase, processID, creds.ForwardedAuthHeader)
	return &ADESDispatcher{OAPDispatcher: oap, DeployBody: deployBody, Creds: creds}
}

func (d *ADESDispatcher) Prepare(ctx context.Context) error {
	if err := d.OAPDispatcher.Base.Prepare(ctx); err != nil {
		return err
	}
	return d.deployIfAbsent(ctx)
}

func (d *ADESDispatcher) deployIfAbsent(ctx context.Context) error {
	url := fmt.Sprintf("%s/processes/%s", d.ProviderBase, d.ProcessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	d.applyAuth(req)

	resp, err := d.doWithReauth(ctx, req)
	if err != nil {
		return fmt.Errorf("dispatch(ades): check deployment: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("dispatch(ades): unexpected status checking deployment: %d", resp.StatusCode)
	}

	deployReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ProviderBase+"/processes", bytes.NewReader(d.DeployBody))
	if err != nil {
		return err
	}
	deployReq.Header.Set("Content-Type", "application/json")
	d.applyAuth(deployReq)

	deployResp, err := d.doWithReauth(ctx, deployReq)
	if err != nil {
		return fmt.Errorf("dispatch(ades): deploy: %w", err)
	}
	defer deployResp.Body.Close()
	if deployResp.StatusCode != http.StatusCreated && deployResp.StatusCode != http.StatusConflict {
		return fmt.Errorf("dispatch(ades): deploy returned HTTP %d", deployResp.StatusCode)
	}

	visBody := bytes.NewReader([]byte(`{"value":"public"}`))
	visReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url+"/visibility", visBody)
	if err != nil {
		return err
	}
	visReq.Header.Set("Content-Type", "application/json")
	d.applyAuth(visReq)

	visResp, err := d.doWithReauth(ctx, visReq)
	if err != nil {
		return fmt.Errorf("dispatch(ades): set visibility: %w", err)
	}
	visResp.Body.Close()
	return nil
}

func (d *ADESDispatcher) applyAuth(req *http.Request) {
	if d.AuthHeader != "" {
		req.Header.Set("Authorization", d.AuthHeader)
	}
}

// doWithReauth performs the request, and on 401/403 acquires an OAuth2
// bearer token and retries once with it attached, preferring a forwarded
// Authorization header over minting a fresh token when one was supplied.
func (d *ADESDispatcher) doWithReauth(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}
	resp.Body.Close()

	if d.Creds.ForwardedAuthHeader != "" {
		d.AuthHeader = d.Creds.ForwardedAuthHeader
		req.Header.Set("Authorization", d.AuthHeader)
		return d.HTTPClient.Do(req)
	}

	token, err := d.acquireToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch(ades): acquire bearer token: %w", err)
	}
	d.AuthHeader = "Bearer " + token
	req.Header.Set("Authorization", d.AuthHeader)
	return d.HTTPClient.Do(req)
}

// acquireToken tries the client-credentials grant first, since it needs
// no end-user secrets beyond what's configured, and falls back to the
// resource-owner password grant when a username/password pair is set.
func (d *ADESDispatcher) acquireToken(ctx context.Context) (string, error) {
	tokenURL := d.Creds.WSO2Hostname + "/oauth2/token"

	if d.Creds.ClientID != "" && d.Creds.ClientSecret != "" {
		cfg := clientcredentials.Config{
			ClientID:     d.Creds.ClientID,
			ClientSecret: d.Creds.ClientSecret,
			TokenURL:     tokenURL,
		}
		token, err := cfg.Token(ctx)
		if err == nil {
			return token.AccessToken, nil
		}
		if d.Creds.Username == "" {
			return "", err
		}
	}

	if d.Creds.Username == "" {
		return "", fmt.Errorf("no client credentials or resource-owner password configured")
	}

	cfg := oauth2.Config{
		ClientID:     d.Creds.ClientID,
		ClientSecret: d.Creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	token, err := cfg.PasswordCredentialsToken(ctx, d.Creds.Username, d.Creds.Password)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
