// Package metrics holds the Prometheus counters maintained by chunked files.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the I/O counters of one client. Instances are independent;
// nothing is shared process-wide.
type Metrics struct {
	BytesRead    *prometheus.CounterVec
	BytesWritten *prometheus.CounterVec
	RowsRead     *prometheus.CounterVec
	RowsWritten  *prometheus.CounterVec
	Errors       *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered but still counting.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	bytesRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qlio_bytes_read_total",
		Help: "Total bytes read from backing storage",
	}, []string{"format"})

	bytesWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qlio_bytes_written_total",
		Help: "Total bytes committed to backing storage",
	}, []string{"format"})

	rowsRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qlio_rows_read_total",
		Help: "Total table rows returned by column reads",
	}, []string{"format"})

	rowsWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qlio_rows_written_total",
		Help: "Total table rows covered by column writes",
	}, []string{"format"})

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qlio_errors_total",
		Help: "Total errors raised by chunked files",
	}, []string{"format", "kind"})

	if reg != nil {
		reg.MustRegister(bytesRead, bytesWritten, rowsRead, rowsWritten, errs)
	}

	return &Metrics{
		BytesRead:    bytesRead,
		BytesWritten: bytesWritten,
		RowsRead:     rowsRead,
		RowsWritten:  rowsWritten,
		Errors:       errs,
	}
}

// AddBytesRead counts n bytes read by a backend.
func (m *Metrics) AddBytesRead(format string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.WithLabelValues(format).Add(float64(n))
}

// AddBytesWritten counts n committed bytes.
func (m *Metrics) AddBytesWritten(format string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesWritten.WithLabelValues(format).Add(float64(n))
}

// AddRowsRead counts rows returned to a caller.
func (m *Metrics) AddRowsRead(format string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsRead.WithLabelValues(format).Add(float64(n))
}

// AddRowsWritten counts rows covered by a write.
func (m *Metrics) AddRowsWritten(format string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsWritten.WithLabelValues(format).Add(float64(n))
}

// IncError counts one error of the given kind.
func (m *Metrics) IncError(format, kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(format, kind).Inc()
}
