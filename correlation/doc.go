// Package correlation parks in-flight exchanges under a key so that a second,
// independently scheduled workflow can complete them.
//
// A REQUEST-mode Interceptor stores the unit's exchange in the Cache and
// marks the unit parked, so the first workflow does not answer the client.
// A RESPONSE-mode Interceptor in another workflow resolves the same key from
// its own unit, takes the exchange out of the Cache and attaches it; that
// workflow's response producer then writes the reply.
//
//	cache := correlation.NewCache(correlation.WithTTL(time.Hour))
//	cache.Start(ctx)
//	defer cache.Close()
//
//	park, _ := correlation.NewInterceptor(cache, correlation.ModeRequest, "")
//	resume, _ := correlation.NewInterceptor(cache, correlation.ModeResponse,
//	    "%message{Exchange-Correlation-Id}")
//
// Keys are resolved from expressions. A blank expression means the unit id.
// %message{name} expands to a metadata value, %uniqueId to the unit id and
// %% to a literal percent sign.
//
// Entries expire after the cache TTL. An expired entry is indistinguishable
// from one never stored; the waiting dispatcher eventually times out.
package correlation
