package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type failingPublisher struct{}

// counterValue reads a counter from the default registry, 0 when absent.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func (failingPublisher) PublishJSON(context.Context, string, any, map[string]string) error {
	return assert.AnError
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/auth.AuthService/ValidateToken")
	assert.Equal(t, "auth.AuthService", service)
	assert.Equal(t, "ValidateToken", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}

func TestGRPCClientInterceptorCountsCodes(t *testing.T) {
	interceptor := GRPCClientMetricsUnaryInterceptor()
	labels := map[string]string{"grpc_service": "auth.AuthService", "grpc_method": "ValidateToken", "grpc_code": codes.Unavailable.String()}
	before := counterValue(t, "grpc_client_handled_total", labels)

	err := interceptor(context.Background(), "/auth.AuthService/ValidateToken", nil, nil, nil,
		func(context.Context, string, any, any, *grpc.ClientConn, ...grpc.CallOption) error {
			return status.Error(codes.Unavailable, "down")
		})

	require.Error(t, err)
	assert.Equal(t, before+1, counterValue(t, "grpc_client_handled_total", labels))
}

func TestPublishEventCountsFailures(t *testing.T) {
	SetPublisher(failingPublisher{})
	t.Cleanup(func() { SetPublisher(nil) })
	before := counterValue(t, "chat_amqp_publish_errors_total", nil)

	err := PublishEvent(context.Background(), WSEventsRoutingKey, EventEnvelope{EventType: "ws"}, nil)

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, before+1, counterValue(t, "chat_amqp_publish_errors_total", nil))
}

func TestHTTPMetricsMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	labels := map[string]string{"method": http.MethodGet, "route": "/healthz", "status": "200"}
	before := counterValue(t, "chat_http_requests_total", labels)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, before+1, counterValue(t, "chat_http_requests_total", labels))
}

func TestRequestHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))
	assert.NotEmpty(t, RequestIDFromRequest(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	req.Header.Set("X-Request-Id", "req-1")
	assert.Equal(t, "1.2.3.4", IPFromRequest(req))
	assert.Equal(t, "req-1", RequestIDFromRequest(req))
	assert.Equal(t, map[string]string{"x-request-id": "req-1", "trace_id": "t"}, BuildHeaders("req-1", "t"))
}
