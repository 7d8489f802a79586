// Package metrics records engine counters in Prometheus text format.
package metrics

import (
	"net/http"

	vm "github.com/VictoriaMetrics/metrics"
)

const (
	taskPacketsName     = "cms_task_packets_total"
	taskElementsName    = "cms_task_elements_added"
	snapshotWritesName  = "cms_snapshot_writes_total"
	federationName      = "cms_federation_sketches_total"
	apiQueriesName      = "cms_api_queries_total"
	alertsTriggeredName = "cms_alerts_triggered_total"
)

func name(base string, labels ...string) string {
	buf := make([]byte, 0, 64)
	buf = append(buf, base...)
	if len(labels) == 0 {
		return string(buf)
	}
	buf = append(buf, '{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, labels[i]...)
		buf = append(buf, `="`...)
		buf = append(buf, labels[i+1]...)
		buf = append(buf, '"')
	}
	buf = append(buf, '}')
	return string(buf)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// TaskPackets returns the packet counter for a task. Callers on the hot path
// should keep the returned counter instead of looking it up per packet.
func TaskPackets(task string) *vm.Counter {
	return vm.GetOrCreateCounter(name(taskPacketsName, "task", task))
}

// SetTaskElements records a task's elementsAdded at snapshot time.
func SetTaskElements(task string, n int64) {
	vm.GetOrCreateGauge(name(taskElementsName, "task", task), nil).Set(float64(n))
}

// IncSnapshotWrite counts one writer invocation.
func IncSnapshotWrite(writer string, err error) {
	vm.GetOrCreateCounter(name(snapshotWritesName, "writer", writer, "status", status(err))).Inc()
}

// IncFederation counts a published or merged sketch.
func IncFederation(op, task string, err error) {
	vm.GetOrCreateCounter(name(federationName, "op", op, "task", task, "status", status(err))).Inc()
}

// IncAPIQuery counts one API call.
func IncAPIQuery(api, method string, err error) {
	vm.GetOrCreateCounter(name(apiQueriesName, "api", api, "method", method, "status", status(err))).Inc()
}

// AddAlerts counts triggered alert rules.
func AddAlerts(n int) {
	vm.GetOrCreateCounter(alertsTriggeredName).Add(n)
}

// Handler serves every registered metric.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		vm.WritePrometheus(w, true)
	})
}
