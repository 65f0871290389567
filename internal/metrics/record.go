package metrics

// Feed metrics

// FeedState records the numeric state of a feed.
func (m *Metrics) FeedState(feed string, state int) {
	if m == nil {
		return
	}
	m.feedState.WithLabelValues(feed).Set(float64(state))
}

func (m *Metrics) FeedConnected(feed string) {
	if m == nil {
		return
	}
	m.feedConnects.WithLabelValues(feed).Inc()
}

func (m *Metrics) FeedDialFailed(feed string) {
	if m == nil {
		return
	}
	m.feedDialFailures.WithLabelValues(feed).Inc()
}

func (m *Metrics) FeedReadFailed(feed string) {
	if m == nil {
		return
	}
	m.feedReadErrors.WithLabelValues(feed).Inc()
}

func (m *Metrics) LineReceived(feed string) {
	if m == nil {
		return
	}
	m.linesReceived.WithLabelValues(feed).Inc()
}

func (m *Metrics) LineDecoded(feed string) {
	if m == nil {
		return
	}
	m.linesDecoded.WithLabelValues(feed).Inc()
}

func (m *Metrics) LineFiltered(feed string) {
	if m == nil {
		return
	}
	m.linesFiltered.WithLabelValues(feed).Inc()
}

// DecodeFailed counts a dropped line. reason is a short stable label
// such as "no_tokens" or "marshal".
func (m *Metrics) DecodeFailed(feed, reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(feed, reason).Inc()
}

// Hub metrics

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.sessions.Inc()
}

// SessionEvicted records a session removal. reason is one of "write",
// "ping", "read", "slow" or "shutdown".
func (m *Metrics) SessionEvicted(reason string) {
	if m == nil {
		return
	}
	m.sessionsEvicted.WithLabelValues(reason).Inc()
	m.sessions.Dec()
}

func (m *Metrics) Broadcast(size int) {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
	m.broadcastBytes.Add(float64(size))
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) UpgradeFailed() {
	if m == nil {
		return
	}
	m.upgradeFailures.Inc()
}

// Mirror metrics

func (m *Metrics) MirrorPublished(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.mirrorErrors.Inc()
		return
	}
	m.mirrorPublished.Inc()
}

// Journal metrics

func (m *Metrics) JournalFlushed(n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.journalErrors.Inc()
		return
	}
	m.journalWritten.Add(float64(n))
}
