// Package natsbridge lets one workflow accept an HTTP request and a second
// workflow answer it after a round trip over NATS.
//
// The request-side workflow parks the exchange with a REQUEST-mode
// correlation interceptor and ends with a Publisher, which sends the payload
// with the correlation key in the Exchange-Correlation-Id header. Whatever
// handles the message replies on another subject with the same header. A
// Consumer on that subject turns each reply into a unit whose metadata is
// the message headers and submits it to the response-side workflow, where a
// RESPONSE-mode interceptor resolves "%message{Exchange-Correlation-Id}" and
// reattaches the parked exchange:
//
//	request := pipeline.NewStandard("orders",
//	    pipeline.WithInterceptors(park),
//	    pipeline.WithServices(natsbridge.NewPublisher(client, "orders.request")),
//	)
//	reply := pipeline.NewStandard("orders-reply",
//	    pipeline.WithInterceptors(resume),
//	    pipeline.WithServices(pipeline.NewResponseProducer()),
//	)
//	consumer := natsbridge.NewConsumer(client, "orders.reply", reply)
package natsbridge
