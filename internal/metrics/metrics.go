package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rusty-dusty/doomnet-client/internal/logging"
)

// Prometheus counters/gauges
var (
	TicsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tics_sent_total",
		Help: "Total local tics transmitted in GAMEDATA (including redundant resends).",
	})
	TicsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tics_received_total",
		Help: "Total distinct remote tics delivered to the simulation.",
	})
	TicsResent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tics_resent_total",
		Help: "Total tics retransmitted in response to a GAMEDATA_RESEND.",
	})
	GamedataAcksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gamedata_acks_sent_total",
		Help: "Total GAMEDATA_ACK messages sent.",
	})
	ResendRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resend_requests_sent_total",
		Help: "Total GAMEDATA_RESEND requests emitted for gaps in the receive ring.",
	})
	PacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "packets_dropped_total",
		Help: "Datagrams dropped before dispatch, by reason.",
	}, []string{"reason"})
	ClockOffsetMs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clock_offset_ms",
		Help: "Current PID-controlled clock offset applied by the loop pacer.",
	})
	SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "session_state",
		Help: "1 for the session's current state, 0 otherwise, labeled by state name.",
	}, []string{"state"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrLabelTransport = "transport"
	ErrLabelHandshake = "handshake"
	ErrLabelProtocol  = "protocol"
	ErrLabelRejected  = "rejected"
	ErrLabelTimeout   = "timeout"
	ErrLabelInvariant = "invariant"
	ErrLabelDiscovery = "discovery"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for cheap logging without scraping Prometheus.
var (
	localTicsSent     uint64
	localTicsReceived uint64
	localTicsResent   uint64
	localAcksSent     uint64
	localResendsSent  uint64
	localErrors       uint64
	localDropped      uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	TicsSent         uint64
	TicsReceived     uint64
	TicsResent       uint64
	GamedataAcksSent uint64
	ResendsSent      uint64
	Errors           uint64
	PacketsDropped   uint64
}

func Snap() Snapshot {
	return Snapshot{
		TicsSent:         atomic.LoadUint64(&localTicsSent),
		TicsReceived:     atomic.LoadUint64(&localTicsReceived),
		TicsResent:       atomic.LoadUint64(&localTicsResent),
		GamedataAcksSent: atomic.LoadUint64(&localAcksSent),
		ResendsSent:      atomic.LoadUint64(&localResendsSent),
		Errors:           atomic.LoadUint64(&localErrors),
		PacketsDropped:   atomic.LoadUint64(&localDropped),
	}
}

func AddTicsSent(n int) {
	TicsSent.Add(float64(n))
	atomic.AddUint64(&localTicsSent, uint64(n))
}

func IncTicsReceived() {
	TicsReceived.Inc()
	atomic.AddUint64(&localTicsReceived, 1)
}

func AddTicsResent(n int) {
	TicsResent.Add(float64(n))
	atomic.AddUint64(&localTicsResent, uint64(n))
}

func IncGamedataAckSent() {
	GamedataAcksSent.Inc()
	atomic.AddUint64(&localAcksSent, 1)
}

func IncResendRequestSent() {
	ResendRequestsSent.Inc()
	atomic.AddUint64(&localResendsSent, 1)
}

func IncPacketDropped(reason string) {
	PacketsDropped.WithLabelValues(reason).Inc()
	atomic.AddUint64(&localDropped, 1)
}

func SetClockOffsetMs(ms int32) {
	ClockOffsetMs.Set(float64(ms))
}

// SetSessionState publishes the session's current state as a one-hot gauge
// over the fixed set of state names.
func SetSessionState(current string, allStates []string) {
	for _, s := range allStates {
		if s == current {
			SessionState.WithLabelValues(s).Set(1)
		} else {
			SessionState.WithLabelValues(s).Set(0)
		}
	}
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers error label
// series so the first real error doesn't pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrLabelTransport, ErrLabelHandshake, ErrLabelProtocol,
		ErrLabelRejected, ErrLabelTimeout, ErrLabelInvariant, ErrLabelDiscovery,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
