package mongostore

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// reportDoc is the stored shape of a report.
type reportDoc struct {
	ID                bson.RawValue   `bson:"_id"`
	RouteID           string          `bson:"route_id"`
	Type              string          `bson:"report_type"`
	Severity          string          `bson:"severity"`
	Description       string          `bson:"description,omitempty"`
	Location          *model.GeoPoint `bson:"location,omitempty"`
	IsAnonymous       bool            `bson:"is_anonymous"`
	DeviceFingerprint string          `bson:"device_fingerprint,omitempty"`
	CreatedAt         time.Time       `bson:"created_at"`
	Status            string          `bson:"status"`
	ResolvedAt        *time.Time      `bson:"resolved_at,omitempty"`
	LastScoredAt      *time.Time      `bson:"last_scored_at,omitempty"`
}

// reportInsert mirrors reportDoc with a plain string id.
type reportInsert struct {
	ID                string          `bson:"_id"`
	RouteID           string          `bson:"route_id"`
	Type              string          `bson:"report_type"`
	Severity          string          `bson:"severity"`
	Description       string          `bson:"description,omitempty"`
	Location          *model.GeoPoint `bson:"location,omitempty"`
	IsAnonymous       bool            `bson:"is_anonymous"`
	DeviceFingerprint string          `bson:"device_fingerprint,omitempty"`
	CreatedAt         time.Time       `bson:"created_at"`
	Status            string          `bson:"status"`
	ResolvedAt        *time.Time      `bson:"resolved_at,omitempty"`
}

func (d *reportDoc) toModel() model.Report {
	return model.Report{
		ID:                idString(d.ID),
		RouteID:           d.RouteID,
		Type:              model.ReportType(d.Type),
		Severity:          model.Severity(d.Severity),
		Description:       d.Description,
		Location:          d.Location,
		IsAnonymous:       d.IsAnonymous,
		DeviceFingerprint: d.DeviceFingerprint,
		CreatedAt:         d.CreatedAt.UTC(),
		Status:            model.Status(d.Status),
		ResolvedAt:        utcPtr(d.ResolvedAt),
		LastScoredAt:      utcPtr(d.LastScoredAt),
	}
}

func fromReport(r *model.Report) reportInsert {
	return reportInsert{
		ID:                r.ID,
		RouteID:           r.RouteID,
		Type:              string(r.Type),
		Severity:          string(r.Severity),
		Description:       r.Description,
		Location:          r.Location,
		IsAnonymous:       r.IsAnonymous,
		DeviceFingerprint: r.DeviceFingerprint,
		CreatedAt:         r.CreatedAt,
		Status:            string(r.Status),
		ResolvedAt:        r.ResolvedAt,
	}
}

// routeDoc is the stored shape of a route.
type routeDoc struct {
	ID        bson.RawValue `bson:"_id"`
	Name      string        `bson:"name,omitempty"`
	SaccoID   string        `bson:"sacco_id"`
	SaccoName string        `bson:"sacco_name,omitempty"`
	TimeZone  string        `bson:"time_zone,omitempty"`
}

type routeInsert struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name,omitempty"`
	SaccoID   string `bson:"sacco_id"`
	SaccoName string `bson:"sacco_name,omitempty"`
	TimeZone  string `bson:"time_zone,omitempty"`
}

func (d *routeDoc) toModel() model.Route {
	return model.Route{
		ID:        idString(d.ID),
		Name:      d.Name,
		SaccoID:   d.SaccoID,
		SaccoName: d.SaccoName,
		TimeZone:  d.TimeZone,
	}
}

func fromRoute(r model.Route) routeInsert {
	return routeInsert{ID: r.ID, Name: r.Name, SaccoID: r.SaccoID, SaccoName: r.SaccoName, TimeZone: r.TimeZone}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
