package testreports

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// Nairobi CBD, around which locations are scattered.
const (
	centerLat   = -1.2864
	centerLng   = 36.8172
	spreadDeg   = 0.08
	coordDigits = 4
)

// Share of generated reports with each property, in percent.
const (
	pctAnonymous   = 30
	pctNoLocation  = 15
	pctBurst       = 10 // repeats the previous device on the same route within minutes
	pctMalformed   = 2
	pctUnassigned  = 10 // routes without an operator
	burstMaxMinute = 8
)

var saccoNames = []string{
	"Super Metro", "Embassava", "Forward Travellers", "Kenya Mpya", "Citi Hoppa",
	"Metro Trans", "Rembo Shuttle", "Lopha", "Mwiki Sacco", "Zuri Line",
}

type weighted[T any] struct {
	v T
	w int
}

var typeWeights = []weighted[model.ReportType]{
	{model.TypeDelay, 40}, {model.TypeCrowding, 25}, {model.TypeSafety, 15},
	{model.TypeBreakdown, 12}, {model.TypeOther, 8},
}

var severityWeights = []weighted[model.Severity]{
	{model.SeverityLow, 40}, {model.SeverityMedium, 35}, {model.SeverityHigh, 17}, {model.SeverityCritical, 8},
}

var statusWeights = []weighted[model.Status]{
	{model.StatusPending, 60}, {model.StatusVerified, 22}, {model.StatusResolved, 13}, {model.StatusDismissed, 5},
}

// Commute peaks, local hour weights.
var hourWeights = [24]int{1, 1, 1, 1, 2, 6, 10, 12, 10, 6, 4, 4, 5, 4, 4, 5, 8, 11, 12, 8, 5, 3, 2, 1}

// Generator produces deterministic synthetic data for a seed.
type Generator struct {
	rng *rand.Rand
	cfg *Config
	loc *time.Location
}

// NewGenerator creates a generator; reports are timed in Africa/Nairobi.
func NewGenerator(cfg *Config) *Generator {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		loc = time.FixedZone("EAT", 3*60*60)
	}
	c := cfg.withDefaults()
	return &Generator{rng: rand.New(rand.NewSource(c.Seed)), cfg: c, loc: loc}
}

// id draws a UUID from the seeded source so runs are reproducible.
func (g *Generator) id() string {
	u, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

func pick[T any](rng *rand.Rand, ws []weighted[T]) T {
	total := 0
	for _, w := range ws {
		total += w.w
	}
	n := rng.Intn(total)
	for _, w := range ws {
		if n < w.w {
			return w.v
		}
		n -= w.w
	}
	return ws[len(ws)-1].v
}

func (g *Generator) pct(p int) bool { return g.rng.Intn(100) < p }

// Routes generates the route catalogue.
func (g *Generator) Routes() []model.Route {
	saccos := g.cfg.NumSaccos
	if saccos > len(saccoNames) {
		saccos = len(saccoNames)
	}
	routes := make([]model.Route, g.cfg.NumRoutes)
	for i := range routes {
		r := model.Route{
			ID:       fmt.Sprintf("route-%03d", i+1),
			Name:     fmt.Sprintf("Route %d", i+1),
			TimeZone: "Africa/Nairobi",
		}
		if !g.pct(pctUnassigned) {
			s := g.rng.Intn(saccos)
			r.SaccoID = fmt.Sprintf("sacco-%02d", s+1)
			r.SaccoName = saccoNames[s]
		}
		routes[i] = r
	}
	return routes
}

// Reports generates reports over routes, created before now.
func (g *Generator) Reports(routes []model.Route, now time.Time) []model.Report {
	out := make([]model.Report, 0, g.cfg.NumReports)
	for i := 0; i < g.cfg.NumReports; i++ {
		if i > 0 && g.pct(pctBurst) {
			out = append(out, g.burst(&out[len(out)-1], now))
			continue
		}
		out = append(out, g.report(routes[g.rng.Intn(len(routes))].ID, now))
	}
	return out
}

func (g *Generator) report(routeID string, now time.Time) model.Report {
	r := model.Report{
		ID:                g.id(),
		RouteID:           routeID,
		Type:              pick(g.rng, typeWeights),
		Severity:          pick(g.rng, severityWeights),
		Status:            pick(g.rng, statusWeights),
		IsAnonymous:       g.pct(pctAnonymous),
		DeviceFingerprint: fmt.Sprintf("device-%05d", g.rng.Intn(g.cfg.Devices)),
		CreatedAt:         g.createdAt(now),
	}
	if !g.pct(pctNoLocation) {
		r.Location = &model.GeoPoint{
			Lat: round(centerLat+(g.rng.Float64()*2-1)*spreadDeg, coordDigits),
			Lng: round(centerLng+(g.rng.Float64()*2-1)*spreadDeg, coordDigits),
		}
	}
	if r.Status == model.StatusResolved {
		resolved := r.CreatedAt.Add(time.Duration(1+g.rng.Intn(72)) * time.Hour)
		if resolved.After(now) {
			resolved = now
		}
		r.ResolvedAt = &resolved
	}
	if g.pct(pctMalformed) {
		r.Severity = "urgent"
	}
	r.Description = fmt.Sprintf("%s reported on %s", r.Type, routeID)
	return r
}

// burst repeats prev's device on the same route a few minutes later.
func (g *Generator) burst(prev *model.Report, now time.Time) model.Report {
	r := g.report(prev.RouteID, now)
	r.DeviceFingerprint = prev.DeviceFingerprint
	r.IsAnonymous = prev.IsAnonymous
	r.CreatedAt = prev.CreatedAt.Add(time.Duration(1+g.rng.Intn(burstMaxMinute)) * time.Minute)
	if r.CreatedAt.After(now) {
		r.CreatedAt = now
	}
	if r.ResolvedAt != nil && r.ResolvedAt.Before(r.CreatedAt) {
		resolved := r.CreatedAt
		r.ResolvedAt = &resolved
	}
	return r
}

// createdAt picks a day in range and a local hour following commute peaks.
func (g *Generator) createdAt(now time.Time) time.Time {
	total := 0
	for _, w := range hourWeights {
		total += w
	}
	n := g.rng.Intn(total)
	hour := 0
	for h, w := range hourWeights {
		if n < w {
			hour = h
			break
		}
		n -= w
	}
	day := now.In(g.loc).AddDate(0, 0, -g.rng.Intn(g.cfg.Days))
	ts := time.Date(day.Year(), day.Month(), day.Day(), hour, g.rng.Intn(60), g.rng.Intn(60), 0, g.loc)
	if ts.After(now) {
		ts = now.Add(-time.Duration(1+g.rng.Intn(3600)) * time.Second)
	}
	return ts.UTC()
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
