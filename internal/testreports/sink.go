package testreports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// JSONSink writes routes and reports as one JSON document per line. It
// satisfies repository.ReportWriter so it can stand in for a real store.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink writes to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

type line struct {
	Kind   string        `json:"kind"`
	Route  *model.Route  `json:"route,omitempty"`
	Report *model.Report `json:"report,omitempty"`
}

// UpsertRoutes writes one line per route.
func (s *JSONSink) UpsertRoutes(_ context.Context, routes []model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range routes {
		if err := s.enc.Encode(line{Kind: "route", Route: &routes[i]}); err != nil {
			return fmt.Errorf("encode route %s: %w", routes[i].ID, err)
		}
	}
	return nil
}

// InsertReports writes one line per report.
func (s *JSONSink) InsertReports(_ context.Context, reports []model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range reports {
		if err := s.enc.Encode(line{Kind: "report", Report: &reports[i]}); err != nil {
			return fmt.Errorf("encode report %s: %w", reports[i].ID, err)
		}
	}
	return nil
}
