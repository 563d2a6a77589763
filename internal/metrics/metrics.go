// secsync is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// secsync is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with secsync. If not, see <https://www.gnu.org/licenses/>.

// Package metrics exposes the Prometheus collectors the server core
// reports against (spec.md §10 observability is intentionally light-touch;
// this is the ambient layer every server deployment gets regardless).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "secsync"

// Registry is the prometheus registry every collector in this package is
// registered against, separate from the default global registry so
// multiple Hub instances in one process (tests, embedding) don't collide.
var Registry = prometheus.NewRegistry()

var (
	SnapshotsAccepted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "accepted_total",
			Help:      "Total number of snapshots accepted by the server",
		},
		[]string{"doc_id"},
	)

	SnapshotsRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshots",
			Name:      "rejected_total",
			Help:      "Total number of snapshots rejected by the server",
		},
		[]string{"doc_id", "reason"},
	)

	UpdatesAccepted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "accepted_total",
			Help:      "Total number of updates accepted by the server",
		},
		[]string{"doc_id"},
	)

	UpdatesRejected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "rejected_total",
			Help:      "Total number of updates rejected by the server",
		},
		[]string{"doc_id", "reason"},
	)

	EphemeralMessagesRelayed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ephemeral",
			Name:      "relayed_total",
			Help:      "Total number of ephemeral messages fanned out to other connections",
		},
		[]string{"doc_id"},
	)

	ConnectionsOpen = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "open",
			Help:      "Number of currently open websocket connections per document",
		},
		[]string{"doc_id"},
	)

	ClientReconnects = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Total number of times the client actor reconnected after a dropped connection",
		},
	)
)
