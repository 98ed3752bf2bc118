/*
Copyright 2025 The lbautoscaler Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package marathon is the HTTP adapter for the orchestrator's application
// list and scale APIs.
package marathon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// app is one record of the orchestrator's application list.
type app struct {
	ID        string `json:"id"`
	Instances int32  `json:"instances"`
}

// appsResponse is the body of the application list endpoint.
type appsResponse struct {
	Apps []app `json:"apps"`
}

// scaleRequest is the body of a scale command.
type scaleRequest struct {
	Instances int32 `json:"instances"`
}

// Client talks to a Marathon-style orchestrator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given orchestrator base URL.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("HTTP client must not be nil")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrapf(err, "parsing orchestrator URL %q", baseURL)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Apps fetches the full application list and returns current replica
// counts keyed by application ID, with the identifier's leading path
// separator stripped.
func (c *Client) Apps(ctx context.Context) (map[string]int32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/apps", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching application list")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("application list returned HTTP status %v", resp.StatusCode)
	}

	var body appsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decoding application list")
	}

	instances := make(map[string]int32, len(body.Apps))
	for _, a := range body.Apps {
		instances[strings.TrimPrefix(a.ID, "/")] = a.Instances
	}
	return instances, nil
}

// Scale sets the replica count of one application. The response body is
// not needed for correctness and is discarded.
func (c *Client) Scale(ctx context.Context, appID string, instances int32) error {
	payload, err := json.Marshal(scaleRequest{Instances: instances})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/v2/apps/"+appID, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "scaling %s to %d instances", appID, instances)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Errorf("scale request for %s returned HTTP status %v", appID, resp.StatusCode)
	}
	return nil
}
