package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "course_chat"

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	messagesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "created_total",
		Help:      "Stored messages by payload kind (text, poll, vote).",
	}, []string{"kind"})

	messagesDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "messages",
		Name:      "deduplicated_total",
		Help:      "Sends answered with the message of an earlier send carrying the same idempotency key.",
	})

	wsConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Open push subscriptions.",
	}, []string{"kind"})

	wsEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "events_total",
		Help:      "Push subscription lifecycle events.",
	}, []string{"kind", "event"})

	fanoutErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fanout",
		Name:      "errors_total",
		Help:      "Insert notifications that could not be relayed.",
	}, []string{"backend"})

	publishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "amqp",
		Name:      "publish_errors_total",
		Help:      "Events the bus failed to publish.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequests,
		httpLatency,
		messagesCreated,
		messagesDeduplicated,
		wsConnections,
		wsEvents,
		fanoutErrors,
		publishErrors,
	)
}

// HTTPMetricsMiddleware records request counts and latency per matched route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncMessageCreated(kind string) { messagesCreated.WithLabelValues(kind).Inc() }

func IncMessageDeduplicated() { messagesDeduplicated.Inc() }

func IncWSActive(kind string) { wsConnections.WithLabelValues(kind).Inc() }

func DecWSActive(kind string) { wsConnections.WithLabelValues(kind).Dec() }

func IncWSEvent(kind, event string) { wsEvents.WithLabelValues(kind, event).Inc() }

func IncFanoutError(backend string) { fanoutErrors.WithLabelValues(backend).Inc() }

func IncAMQPPublishError() { publishErrors.Inc() }
