// Package metrics holds the Prometheus collectors shared by the pollers,
// the flow and the generation backends, and the HTTP router that serves them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formcrew_llm_requests_total",
			Help: "Total number of generation requests",
		},
		[]string{"backend", "status"},
	)
	LLMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formcrew_llm_duration_seconds",
			Help:    "Generation request duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)
	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formcrew_tool_calls_total",
			Help: "Total number of tool invocations made during generation",
		},
		[]string{"tool", "status"},
	)
	Sections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formcrew_sections_total",
			Help: "Total number of report sections generated",
		},
		[]string{"status"},
	)
	FlowRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formcrew_flow_runs_total",
			Help: "Total number of flow runs by outcome",
		},
		[]string{"outcome"},
	)
	FlowDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formcrew_flow_duration_seconds",
			Help:    "Flow run duration in seconds",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		},
	)
	Claims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formcrew_claims_total",
			Help: "Total number of work items claimed by the pollers",
		},
		[]string{"queue"},
	)
	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formcrew_events_total",
			Help: "Total number of progress events by sink and status",
		},
		[]string{"sink", "status"},
	)
	FeedbackRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formcrew_feedback_records_total",
			Help: "Total number of agent feedback records generated from reviewer edits",
		},
	)
	SectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formcrew_section_duration_seconds",
			Help:    "Report section generation duration in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)
)

func init() {
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(LLMDuration)
	prometheus.MustRegister(ToolCalls)
	prometheus.MustRegister(Sections)
	prometheus.MustRegister(FlowRuns)
	prometheus.MustRegister(FlowDuration)
	prometheus.MustRegister(Claims)
	prometheus.MustRegister(Events)
	prometheus.MustRegister(FeedbackRecords)
	prometheus.MustRegister(SectionDuration)
}

// Status maps an error to the "ok"/"error" label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveSince records the elapsed seconds since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// NewRouter returns a router serving /metrics and /healthz. Extra routes
// can be mounted with the given functions.
func NewRouter(mounts ...func(r *mux.Router)) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	for _, m := range mounts {
		m(r)
	}
	return r
}

// Serve runs h on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
