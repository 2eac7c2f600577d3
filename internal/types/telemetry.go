package types

// Telemetry metric names. All components MUST use these constants.
const (
	MetricAPIRequest     = "APIRequest"
	MetricAPILatency     = "APILatency"
	MetricUsageAdmission = "UsageAdmission"
	MetricWebhookEvent   = "WebhookEvent"

	// Dimension Keys
	DimMethod    = "Method"
	DimRoute     = "Route"
	DimStatus    = "Status"
	DimFeature   = "Feature"
	DimResult    = "Result"
	DimEventType = "EventType"

	// MetricNamespace is the default CloudWatch namespace.
	MetricNamespace = "CollegePlan"
)
