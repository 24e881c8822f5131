package repository

import "github.com/commutewatch/riskengine/internal/domain/model"

// Option configures a MemoryReportStore.
type Option func(*MemoryReportStore)

// WithRoutes preloads routes.
func WithRoutes(routes ...model.Route) Option {
	return func(s *MemoryReportStore) {
		for _, r := range routes {
			s.routes[r.ID] = r
		}
	}
}

// WithReports preloads reports.
func WithReports(reports ...model.Report) Option {
	return func(s *MemoryReportStore) {
		for _, r := range reports {
			if _, ok := s.reports[r.ID]; !ok {
				s.order = append(s.order, r.ID)
			}
			s.reports[r.ID] = r
		}
	}
}
