package message

// Metadata keys set by the HTTP gateway. These are the only parts of the
// inbound request visible to services.
const (
	KeyURL         = "httpURL"
	KeyPath        = "httpPath"
	KeyQueryString = "httpQueryString"
	KeyMethod      = "httpMethod"
	KeyRoles       = "httpRoles"
	KeyRemoteAddr  = "httpRemoteAddr"
	KeyRequestID   = "httpRequestID"
	KeyContentType = "httpContentType"
)

// Metadata keys read by the response producer.
const (
	// KeyStatus overrides the status code the producer writes.
	KeyStatus = "httpStatus"
	// KeyResponseContentType overrides the response Content-Type.
	KeyResponseContentType = "httpResponseContentType"
)

// KeyCorrelationID is the metadata key (and NATS header) that carries the
// correlation key between the request-side and response-side pipelines.
const KeyCorrelationID = "Exchange-Correlation-Id"

// KeyAdmission is set to AdmissionRejected on units refused by admission control.
const (
	KeyAdmission      = "exchangeAdmission"
	AdmissionRejected = "rejected"
)
