package queue

import "time"

// HistoryLimit is the default size of the per-model history ring.
const HistoryLimit = 100

// historyWindow is the lookback used to compute requests-per-minute.
const historyWindow = 5 * time.Minute

// HistoricalEntry is one ring-buffer sample recorded by Track.
type HistoricalEntry struct {
	Timestamp         time.Time `json:"timestamp"`
	QueueDepth        int       `json:"queue_depth"`
	WaitTime          float64   `json:"wait_time"`
	ProcessingTime    float64   `json:"processing_time"`
	Success           bool      `json:"success"`
	AvgWaitTime       float64   `json:"avg_wait_time"`
	RequestsPerMinute float64   `json:"requests_per_minute"`
}

// metrics accumulates the counters and derived statistics for one model.
// All fields are only ever touched under the owning Manager's mutex.
type metrics struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	totalWaitTime      float64
	totalProcessingTime float64
	peakDepth          int
	lastActivity       *time.Time

	history []HistoricalEntry // oldest first, bounded to HistoryLimit
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) reset() {
	*m = metrics{}
}

// record applies one completed request's outcome: updates totals, appends
// a history entry (evicting the oldest if at capacity), and recomputes the
// rolling requests-per-minute rate from the history window.
func (m *metrics) record(now time.Time, queueDepth int, waitTime, processingTime time.Duration, success bool) {
	m.totalRequests++
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}

	waitSeconds := waitTime.Seconds()
	procSeconds := processingTime.Seconds()
	m.totalWaitTime += waitSeconds
	m.totalProcessingTime += procSeconds

	if queueDepth > m.peakDepth {
		m.peakDepth = queueDepth
	}
	m.lastActivity = &now

	rpm := m.requestsPerMinute(now)

	entry := HistoricalEntry{
		Timestamp:         now,
		QueueDepth:        queueDepth,
		WaitTime:          waitSeconds,
		ProcessingTime:    procSeconds,
		Success:           success,
		AvgWaitTime:       m.avgWaitTime(),
		RequestsPerMinute: rpm,
	}
	m.history = append(m.history, entry)
	if len(m.history) > HistoryLimit {
		m.history = m.history[len(m.history)-HistoryLimit:]
	}
}

func (m *metrics) avgWaitTime() float64 {
	if m.totalRequests == 0 {
		return 0
	}
	return m.totalWaitTime / float64(m.totalRequests)
}

func (m *metrics) avgProcessingTime() float64 {
	if m.totalRequests == 0 {
		return 0
	}
	return m.totalProcessingTime / float64(m.totalRequests)
}

// requestsPerMinute counts history entries within the last 5 minutes of
// now and divides by the window length in minutes, matching the source's
// "entries / 5.0" computation.
func (m *metrics) requestsPerMinute(now time.Time) float64 {
	cutoff := now.Add(-historyWindow)
	count := 0
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	return float64(count) / (historyWindow.Minutes())
}

func (m *metrics) recentHistory(limit int) []HistoricalEntry {
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	start := len(m.history) - limit
	out := make([]HistoricalEntry, limit)
	copy(out, m.history[start:])
	return out
}
