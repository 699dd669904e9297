package domain

// Metrics receives counters from the timeline pipeline.
type Metrics interface {
	ObserveFilterDecision(platform Platform, decision Decision)
	ObserveResolverCache(hit bool)
	ObservePostIngested(platform Platform)
	ObserveTimelineUpsert(source string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveFilterDecision(Platform, Decision) {}
func (nopMetrics) ObserveResolverCache(bool)                {}
func (nopMetrics) ObservePostIngested(Platform)             {}
func (nopMetrics) ObserveTimelineUpsert(string)             {}
