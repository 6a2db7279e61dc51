package observability

const (
	AttrEndpoint    = "gateway.endpoint"
	AttrStage       = "pipeline.stage"
	AttrWindow      = "pipeline.window"
	AttrFanOut      = "pipeline.fan_out"
	AttrService     = "service.name"
	AttrServicePath = "service.path"
	AttrErrorKind   = "error.kind"
	AttrStatusCode  = "http.status_code"

	SpanHTTPRequest = "http.request"
	SpanPipeline    = "pipeline.run"
	SpanStage       = "pipeline.stage"
	SpanServiceCall = "service.call"

	DefaultServiceName  = "helio"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
