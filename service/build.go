package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/c360/exchangegate/admission"
	"github.com/c360/exchangegate/config"
	"github.com/c360/exchangegate/correlation"
	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
	"github.com/c360/exchangegate/natsbridge"
	"github.com/c360/exchangegate/pipeline"
)

// buildWorkflow assembles a workflow from its configuration. Admission runs
// before correlation so a rejected unit is never parked.
func (g *Gateway) buildWorkflow(name string, wc config.WorkflowConfig) (pipeline.Workflow, error) {
	services := make([]pipeline.Service, 0, len(wc.Services))
	for i, sc := range wc.Services {
		svc, err := g.buildService(sc)
		if err != nil {
			return nil, errors.Wrap(err, "Gateway", "buildWorkflow", fmt.Sprintf("%s service %d", name, i))
		}
		services = append(services, svc)
	}

	var interceptors []pipeline.Interceptor
	if wc.Admission {
		ctrl := admission.NewController(
			admission.WithLogger(g.logger.With("component", "admission", "workflow", name)),
			admission.WithMetrics(g.metrics),
		)
		g.admission[name] = ctrl
		interceptors = append(interceptors, ctrl)
	}
	if wc.Correlation != nil {
		mode, err := correlation.ParseMode(wc.Correlation.Mode)
		if err != nil {
			return nil, err
		}
		ic, err := correlation.NewInterceptor(g.cache, mode, wc.Correlation.Key,
			correlation.WithInterceptorLogger(g.logger.With("component", "correlation", "workflow", name, "mode", string(mode))))
		if err != nil {
			return nil, err
		}
		interceptors = append(interceptors, ic)
	}

	opts := []pipeline.Option{
		pipeline.WithServices(services...),
		pipeline.WithInterceptors(interceptors...),
		pipeline.WithLogger(g.logger.With("component", "workflow", "workflow", name)),
		pipeline.WithMetricsRegistry(g.registry),
	}

	switch wc.Kind {
	case config.KindPooling:
		return pipeline.NewPooling(name, wc.Workers, wc.QueueSize, opts...), nil
	default:
		return pipeline.NewStandard(name, opts...), nil
	}
}

func (g *Gateway) buildService(sc config.ServiceConfig) (pipeline.Service, error) {
	switch sc.Type {
	case config.ServiceRespond:
		opts := []pipeline.ProducerOption{
			pipeline.WithProducerLogger(g.logger.With("component", "response-producer")),
		}
		if sc.Status != 0 {
			opts = append(opts, pipeline.WithStatus(sc.Status))
		}
		if sc.ContentType != "" {
			opts = append(opts, pipeline.WithContentType(sc.ContentType))
		}
		if len(sc.HeaderKeys) > 0 {
			opts = append(opts, pipeline.WithHeaderKeys(sc.HeaderKeys...))
		}
		if sc.HeaderPrefix != "" {
			opts = append(opts, pipeline.WithHeaderPrefix(sc.HeaderPrefix))
		}
		return pipeline.NewResponseProducer(opts...), nil

	case config.ServicePublish:
		if g.nats == nil {
			return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "buildService",
				"publish service "+sc.Subject+" needs a NATS connection")
		}
		return natsbridge.NewPublisher(g.nats, sc.Subject,
			natsbridge.WithHeaderKeys(sc.HeaderKeys...),
			natsbridge.WithPublisherLogger(g.logger.With("component", "nats-publisher", "subject", sc.Subject)),
			natsbridge.WithPublisherMetrics(g.metrics),
		), nil

	case config.ServiceStatic:
		return staticService(sc), nil

	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "buildService",
			fmt.Sprintf("unknown service type %q", sc.Type))
	}
}

// staticService answers every unit with a fixed body and status.
func staticService(sc config.ServiceConfig) pipeline.Service {
	body := []byte(sc.Body)
	return pipeline.NewServiceFunc("static", func(_ context.Context, unit *message.Unit) error {
		if len(body) > 0 {
			unit.SetPayload(body)
		}
		if sc.Status != 0 {
			unit.Set(message.KeyStatus, strconv.Itoa(sc.Status))
		}
		if sc.ContentType != "" {
			unit.Set(message.KeyResponseContentType, sc.ContentType)
		}
		return nil
	})
}
