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

package metrics

// Collector implements server.Metrics, recording every event against the
// package-level Prometheus collectors.
type Collector struct{}

// NewCollector returns the default Prometheus-backed collector.
func NewCollector() Collector { return Collector{} }

func (Collector) SnapshotAccepted(docID string) {
	SnapshotsAccepted.WithLabelValues(docID).Inc()
}

func (Collector) SnapshotRejected(docID, reason string) {
	SnapshotsRejected.WithLabelValues(docID, reason).Inc()
}

func (Collector) UpdateAccepted(docID string) {
	UpdatesAccepted.WithLabelValues(docID).Inc()
}

func (Collector) UpdateRejected(docID, reason string) {
	UpdatesRejected.WithLabelValues(docID, reason).Inc()
}

func (Collector) EphemeralMessageRelayed(docID string) {
	EphemeralMessagesRelayed.WithLabelValues(docID).Inc()
}

func (Collector) ConnectionOpened(docID string) {
	ConnectionsOpen.WithLabelValues(docID).Inc()
}

func (Collector) ConnectionClosed(docID string) {
	ConnectionsOpen.WithLabelValues(docID).Dec()
}
