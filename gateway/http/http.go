// Package http serves gateway routes: each route gets a Dispatcher that
// holds the HTTP exchange open while a workflow produces the response.
package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/gateway"
	"github.com/c360/exchangegate/pipeline"
)

// WorkflowLookup resolves route workflow names. pipeline.Registry implements it.
type WorkflowLookup interface {
	Get(name string) (pipeline.Workflow, error)
}

// Gateway owns one Dispatcher per configured route.
type Gateway struct {
	config      gateway.Config
	dispatchers []*Dispatcher
	logger      *slog.Logger
}

// NewGateway validates cfg and builds a dispatcher for every route.
func NewGateway(cfg gateway.Config, workflows WorkflowLookup, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "NewGateway", "config validation")
	}
	if workflows == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Gateway", "NewGateway",
			"workflow lookup is required")
	}

	o := buildOptions(opts)
	g := &Gateway{config: cfg, logger: o.logger}

	for i := range cfg.Routes {
		route := cfg.Routes[i]
		wf, err := workflows.Get(route.Workflow)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Gateway", "NewGateway",
				fmt.Sprintf("route %s", route.Path))
		}
		routeOpts := append([]Option{
			WithMaxRequestSize(cfg.RequestLimit(&route)),
			WithHeaderPrefix(cfg.HeaderPrefix),
		}, opts...)
		d, err := NewDispatcher(route, wf, routeOpts...)
		if err != nil {
			return nil, err
		}
		g.dispatchers = append(g.dispatchers, d)
	}
	return g, nil
}

// Dispatchers returns the per-route dispatchers in configuration order.
func (g *Gateway) Dispatchers() []*Dispatcher {
	return append([]*Dispatcher(nil), g.dispatchers...)
}

// Mount registers every route on a chi router.
func (g *Gateway) Mount(r chi.Router) {
	for _, d := range g.dispatchers {
		p := g.pathFor(d)
		r.Handle(p, g.handler(d))
		g.logger.Info("Mounted route", "path", p, "methods", d.allow)
	}
}

func (g *Gateway) pathFor(d *Dispatcher) string {
	p := path.Join("/", g.config.Prefix, d.route.Path)
	if strings.HasSuffix(d.route.Path, "/") && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (g *Gateway) handler(d *Dispatcher) http.Handler {
	if !g.config.EnableCORS {
		return d
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.applyCORS(w, r, d.allow)
		d.ServeHTTP(w, r)
	})
}

// applyCORS applies CORS headers to the response
func (g *Gateway) applyCORS(w http.ResponseWriter, r *http.Request, methods string) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range g.config.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Prefer, "+RequestIDHeader)
	w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
	w.Header().Set("Access-Control-Max-Age", "3600")
}
