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

// Package haproxy fetches and parses the load balancer's CSV stats feed.
package haproxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Fedosin/lbautoscaler/api"
)

const (
	// frontendSentinel marks the rows of the feed that describe a
	// load-balancer frontend.
	frontendSentinel = "FRONTEND"

	// commentMarker prefixes non-data rows in the feed.
	commentMarker = "#"
)

// Resolver expands a logical hostname into concrete addresses.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// endpoint is one configured load-balancer URL, decomposed so the host can
// be swapped for each resolved address.
type endpoint struct {
	scheme string
	host   string
	port   string
	path   string
}

// Sampler polls every resolved load-balancer host for its stats feed and
// extracts the rows belonging to the monitored key set.
type Sampler struct {
	endpoints []endpoint
	keys      map[api.MonitoredKey]struct{}
	client    *http.Client
	resolver  Resolver
	logger    *zap.SugaredLogger
}

// NewSampler builds a Sampler for the given load-balancer base URLs.
// Malformed URLs are a startup error.
func NewSampler(lbURLs []string, statsPath string, keys []string, client *http.Client, resolver Resolver, logger *zap.SugaredLogger) (*Sampler, error) {
	if client == nil {
		return nil, errors.New("HTTP client must not be nil")
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	endpoints := make([]endpoint, 0, len(lbURLs))
	for _, raw := range lbURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing load balancer URL %q", raw)
		}
		if u.Hostname() == "" {
			return nil, errors.Errorf("load balancer URL %q has no host", raw)
		}
		port := u.Port()
		if port == "" {
			if u.Scheme == "https" {
				port = "443"
			} else {
				port = "80"
			}
		}
		endpoints = append(endpoints, endpoint{
			scheme: u.Scheme,
			host:   u.Hostname(),
			port:   port,
			path:   statsPath,
		})
	}

	keySet := make(map[api.MonitoredKey]struct{}, len(keys))
	for _, k := range keys {
		keySet[api.MonitoredKey(k)] = struct{}{}
	}

	return &Sampler{
		endpoints: endpoints,
		keys:      keySet,
		client:    client,
		resolver:  resolver,
		logger:    logger,
	}, nil
}

// Sample polls all resolved hosts once and returns one HostSample per host
// that responded with a parseable feed. Hosts that fail to resolve, respond
// or parse are logged and skipped; they never abort the remaining hosts.
func (s *Sampler) Sample(ctx context.Context) []api.HostSample {
	urls := s.expand(ctx)

	var (
		mu      sync.Mutex
		samples = make([]api.HostSample, 0, len(urls))
	)

	// One worker per resolved host. The merge is a summation, so host
	// completion order does not matter.
	g, ctx := errgroup.WithContext(ctx)
	for host, u := range urls {
		host, u := host, u
		g.Go(func() error {
			rows, err := s.scrape(ctx, u)
			if err != nil {
				s.logger.Warnw("skipping load balancer host for this tick", "host", host, zap.Error(err))
				return nil
			}
			mu.Lock()
			samples = append(samples, api.HostSample{Host: host, Rows: rows})
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return samples
}

// expand resolves each endpoint's hostname and returns the stats URL to
// fetch, keyed by concrete "host:port" address.
func (s *Sampler) expand(ctx context.Context) map[string]string {
	urls := make(map[string]string)
	for _, ep := range s.endpoints {
		addrs, err := s.resolver.LookupHost(ctx, ep.host)
		if err != nil {
			s.logger.Warnw("skipping unresolvable load balancer", "host", ep.host, zap.Error(err))
			continue
		}
		for _, addr := range addrs {
			hostport := net.JoinHostPort(addr, ep.port)
			urls[hostport] = fmt.Sprintf("%s://%s%s", ep.scheme, hostport, ep.path)
		}
	}
	return urls
}

// scrape fetches one host's feed and parses it.
func (s *Sampler) scrape(ctx context.Context, statsURL string) (map[api.MonitoredKey]api.Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("GET request for URL %q returned HTTP status %v", statsURL, resp.StatusCode)
	}

	return s.parse(resp.Body)
}

// parse reads the delimited stats feed. The first row is a comment-framed
// header whose second-and-later tokens name the positional columns for
// every data row's second-and-later fields; the first field of a data row
// is its monitored key. Only FRONTEND rows for monitored keys are kept.
func (s *Sampler) parse(r io.Reader) (map[api.MonitoredKey]api.Row, error) {
	scanner := bufio.NewScanner(r)

	var columns []string
	rows := make(map[api.MonitoredKey]api.Row)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if columns == nil {
			tokens := strings.Split(line, ",")
			if len(tokens) < 2 {
				return nil, errors.Errorf("malformed stats header %q", line)
			}
			columns = make([]string, 0, len(tokens)-1)
			for _, tok := range tokens[1:] {
				columns = append(columns, strings.TrimSpace(strings.Trim(tok, commentMarker+" ")))
			}
			continue
		}

		if strings.HasPrefix(line, commentMarker) {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 2 || fields[1] != frontendSentinel {
			continue
		}

		key := api.MonitoredKey(fields[0])
		if _, ok := s.keys[key]; !ok {
			continue
		}

		row := make(api.Row, len(columns))
		for i, col := range columns {
			if i+1 < len(fields) {
				row[col] = fields[i+1]
			}
		}
		rows[key] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading stats feed")
	}
	if columns == nil {
		return nil, errors.New("stats feed contained no header row")
	}

	return rows, nil
}
