package verification

import "context"

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalRecords        int64   `json:"total_records"`
	FaceMatches         int64   `json:"face_matches"`
	MatchRate           float64 `json:"match_rate"`
	AverageMatchPercent float64 `json:"average_match_percent"`
}

// GetMetricsSummary aggregates metrics from the stored records.
func (s *Service) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := s.store.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRecords:        aggregation.TotalCount,
		FaceMatches:         aggregation.MatchedCount,
		AverageMatchPercent: aggregation.AverageMatchPercent,
	}

	if aggregation.TotalCount > 0 {
		summary.MatchRate = float64(aggregation.MatchedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
