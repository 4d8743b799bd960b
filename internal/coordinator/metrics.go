package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "salesinsight_dataset_files_total",
			Help: "Total number of dataset files processed by the watcher, by outcome.",
		},
		[]string{"outcome"},
	)
	rowsLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "salesinsight_dataset_rows_loaded_total",
			Help: "Total number of sale rows loaded from watched dataset files.",
		},
	)
	pendingFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "salesinsight_dataset_pending_files",
			Help: "Dataset files discovered but not yet loaded.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		filesTotal,
		rowsLoadedTotal,
		pendingFiles,
	)
}
