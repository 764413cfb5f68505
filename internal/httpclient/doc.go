// Package httpclient builds and sends the requests issued by the scenario.
//
// [NewRequestBuilder] fixes a method and target once; [RequestBuilder.Build]
// stamps each request with the bearer token from an [AuthProvider] and, when
// enabled, W3C trace context:
//
//	builder, err := httpclient.NewRequestBuilder(http.MethodGet, target, nil)
//	if err != nil {
//		return err
//	}
//	builder.WithAuth(provider).WithTracePropagation(true)
//	req, err := builder.Build(ctx)
//
// [NewClient] returns a client with connection reuse suited to a steady
// arrival rate. [ReadBody] drains a response while keeping a bounded prefix
// for logging.
package httpclient
