// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"context"
	"net/url"
)

// TokenIdentity is the principal a token resolves to.
type TokenIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LongLivedToken is the result of a token exchange.
type LongLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ValidateToken performs the lightweight identity fetch the workflow uses as
// a pre-flight check. An expired or revoked token surfaces here as a
// platform auth failure before any bytes are fetched or encoded.
func (c *Client) ValidateToken(ctx context.Context, token string) (*TokenIdentity, error) {
	endpoint := c.endpoint(c.graphHost, "me") + "?access_token=" + url.QueryEscape(token)
	var out TokenIdentity
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangeLongLivedToken swaps a short-lived user token for a long-lived
// one. This is a one-shot maintenance operation, not part of the publish
// path.
func (c *Client) ExchangeLongLivedToken(ctx context.Context, appID, appSecret, token string) (*LongLivedToken, error) {
	values := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {appID},
		"client_secret":     {appSecret},
		"fb_exchange_token": {token},
	}
	endpoint := c.endpoint(c.graphHost, "oauth", "access_token") + "?" + values.Encode()
	var out LongLivedToken
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
