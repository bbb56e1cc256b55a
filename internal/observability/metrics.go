package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MNotifications           MetricKey = "cart_notifications_total"
	MStorageWrites           MetricKey = "cart_storage_writes_total"
)

// MetricSpec describes how a key is registered with a metrics backend.
type MetricSpec struct {
	Key     MetricKey
	Help    string
	Labels  []string
	Buckets []float64
}

// Counters lists every counter the service emits.
var Counters = []MetricSpec{
	{Key: MUsecaseRequests, Help: "Total number of use case invocations.", Labels: []string{"use_case", "outcome"}},
	{Key: MHTTPRequests, Help: "Total number of HTTP requests.", Labels: []string{"method", "route", "status"}},
	{Key: MExternalRequests, Help: "Total number of calls to external dependencies.", Labels: []string{"peer", "endpoint", "outcome"}},
	{Key: MNotifications, Help: "User notifications by kind and delivery outcome.", Labels: []string{"kind", "outcome"}},
	{Key: MStorageWrites, Help: "Cart writes to durable storage.", Labels: []string{"outcome"}},
}

// Histograms lists every histogram the service emits. Nil buckets mean the backend default.
var Histograms = []MetricSpec{
	{Key: MUsecaseDuration, Help: "Duration of use case execution in seconds.", Labels: []string{"use_case"}},
	{Key: MHTTPRequestDuration, Help: "Duration of HTTP requests in seconds.", Labels: []string{"method", "route", "status"}},
	{Key: MExternalRequestDuration, Help: "Duration of calls to external dependencies in seconds.", Labels: []string{"peer", "endpoint"}},
}
