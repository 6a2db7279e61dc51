// Package services resolves the downstream service topology: one entry per
// service with its base URL and configured client, plus readiness probes.
package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxsim/helio/pkg/config"
	"github.com/luxsim/helio/pkg/httpclient"
	"github.com/luxsim/helio/pkg/observability"
	"github.com/luxsim/helio/pkg/registry"
)

// probeTimeout bounds each readiness probe; probes are never retried.
const probeTimeout = 2 * time.Second

// Service is one downstream service with its configured client.
type Service struct {
	Name   string
	URL    string
	Client *httpclient.Client

	probe *httpclient.Client
}

// Endpoint joins the service base URL with a path.
func (s *Service) Endpoint(path string) string {
	return s.URL + "/" + strings.TrimLeft(path, "/")
}

// Registry holds the closed set of downstream services keyed by name.
type Registry struct {
	*registry.BaseRegistry[*Service]
}

// NewRegistry builds clients for every configured service. All clients
// share one connection pool so the per-host connection cap applies
// process-wide.
func NewRegistry(cfg *config.Config, metrics observability.Metrics) (*Registry, error) {
	transport := httpclient.NewTransport(cfg.Client.ConnectTimeout, cfg.Client.MaxConnsPerHost)

	reg := &Registry{BaseRegistry: registry.NewBaseRegistry[*Service]()}
	for _, name := range config.ServiceNames {
		svc := &Service{
			Name: name,
			URL:  cfg.ServiceURL(name),
			Client: httpclient.New(
				httpclient.WithService(name),
				httpclient.WithTransport(transport),
				httpclient.WithTimeout(cfg.ServiceReadTimeout(name)),
				httpclient.WithMaxRetries(cfg.Client.MaxRetries),
				httpclient.WithBaseDelay(cfg.Client.BaseDelay),
				httpclient.WithBearer(cfg.Client.BearerToken),
				httpclient.WithMetrics(metrics),
			),
			probe: httpclient.New(
				httpclient.WithService(name),
				httpclient.WithTransport(transport),
				httpclient.WithTimeout(probeTimeout),
				httpclient.WithMaxRetries(1),
				httpclient.WithBearer(cfg.Client.BearerToken),
			),
		}
		if err := reg.Register(name, svc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Health probes every service base URL concurrently and reports "ready" or
// "unreachable" per service.
func (r *Registry) Health(ctx context.Context) map[string]string {
	svcs := r.List()
	statuses := make([]string, len(svcs))

	g := new(errgroup.Group)
	for i, svc := range svcs {
		g.Go(func() error {
			if err := svc.probe.Get(ctx, svc.URL+"/"); err != nil {
				statuses[i] = "unreachable"
			} else {
				statuses[i] = "ready"
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]string, len(svcs))
	for i, svc := range svcs {
		out[svc.Name] = statuses[i]
	}
	return out
}

// AllReady reports whether every service probe succeeded.
func AllReady(statuses map[string]string) bool {
	for _, status := range statuses {
		if status != "ready" {
			return false
		}
	}
	return true
}
