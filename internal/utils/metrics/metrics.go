// internal/utils/metrics/metrics.go
package metrics

import "time"

// RecordTick counts a tick delivered to a campaign.
func (c *Collector) RecordTick(applied bool) {
	if c == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "rejected"
	}
	c.ticks.WithLabelValues(result).Inc()
}

// RecordAlertFired counts a fired alert.
func (c *Collector) RecordAlertFired(priceType, direction string) {
	if c == nil {
		return
	}
	c.alertsFired.WithLabelValues(priceType, direction).Inc()
}

// RecordAction records the outcome and duration of one action.
func (c *Collector) RecordAction(actionType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.actions.WithLabelValues(actionType, status).Inc()
	c.actionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// SetActiveCampaigns updates the active campaign gauge.
func (c *Collector) SetActiveCampaigns(n int) {
	if c == nil {
		return
	}
	c.activeCampaigns.Set(float64(n))
}

// RecordJournalAppend counts an appended trigger record.
func (c *Collector) RecordJournalAppend() {
	if c == nil {
		return
	}
	c.journalRecords.Inc()
}

// RecordQuoteLatency observes a quote round trip.
func (c *Collector) RecordQuoteLatency(source string, duration time.Duration) {
	if c == nil {
		return
	}
	c.quoteLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordFeedReconnect counts a reconnect attempt.
func (c *Collector) RecordFeedReconnect(feed string) {
	if c == nil {
		return
	}
	c.feedReconnects.WithLabelValues(feed).Inc()
}

// SetFeedSubscriptions updates the subscribed instrument gauge.
func (c *Collector) SetFeedSubscriptions(feed string, n int) {
	if c == nil {
		return
	}
	c.feedSubscription.WithLabelValues(feed).Set(float64(n))
}
