package engine

import (
	"encoding/json"
	"testing"
	"time"

	"clearline/internal/config"
	"clearline/internal/domain"
)

func TestCategoryForKeywordPriority(t *testing.T) {
	cases := []struct {
		stage string
		want  string
	}{
		{"Documentation", domain.CategoryDocumentation},
		{"Pre-Arrival Docs", domain.CategoryDocumentation},
		{"Packing List Review", domain.CategoryDocumentation},
		{"Commercial Invoice", domain.CategoryDocumentation},
		{"Customs Declaration", domain.CategoryCustomsDeclaration},
		{"Customs Clearance", domain.CategoryCustomsDeclaration},
		{"Tariff Classification", domain.CategoryCustomsDeclaration},
		{"Duty Payment", domain.CategoryPayment},
		{"Port Fees", domain.CategoryPayment},
		{"VAT Refund", domain.CategoryPayment},
		{"Physical Inspection", domain.CategoryInspection},
		{"Quality Standards", domain.CategoryInspection},
		{"Quarantine Hold", domain.CategoryInspection},
		{"Cargo Release", domain.CategoryRelease},
		{"Cargo Clearance", domain.CategoryRelease},
		{"Final Delivery", domain.CategoryDelivery},
		{"Loading", domain.CategoryDelivery},
		{"Truck Dispatch", domain.CategoryDelivery},
		{"Vessel Arrival", domain.CategoryGeneral},
		{"", domain.CategoryGeneral},
	}
	for _, tc := range cases {
		if got := categoryFor(tc.stage); got != tc.want {
			t.Errorf("categoryFor(%q) = %s, want %s", tc.stage, got, tc.want)
		}
	}
}

func TestActivityUnmarshalBothSchemes(t *testing.T) {
	var a Activity
	legacy := `{"system":"IMPORT_SEA_FCL","category":"Documentation","subcategory":"Docs","activity":"Collect BL"}`
	if err := json.Unmarshal([]byte(legacy), &a); err != nil {
		t.Fatalf("unmarshal legacy: %v", err)
	}
	if a.ShipmentType != "IMPORT_SEA_FCL" || a.Stage != "Documentation" || a.Substage != "Docs" || a.Task != "Collect BL" {
		t.Fatalf("legacy fields not mapped: %+v", a)
	}

	mixed := `{"stage":"Payment","category":"Documentation","task":"Pay duty","activity":"Old name"}`
	a = Activity{}
	if err := json.Unmarshal([]byte(mixed), &a); err != nil {
		t.Fatalf("unmarshal mixed: %v", err)
	}
	if a.Stage != "Payment" {
		t.Errorf("stage = %q, newer field name must win", a.Stage)
	}
	if a.Task != "Pay duty" {
		t.Errorf("task = %q, newer field name must win", a.Task)
	}
}

func TestParseActivities(t *testing.T) {
	if acts, err := ParseActivities(nil); err != nil || acts != nil {
		t.Fatalf("nil input: %v %v", acts, err)
	}
	raw := `[{"stage":"Documentation","task":"Collect BL"}]`
	acts, err := ParseActivities(&raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(acts) != 1 || acts[0].Stage != "Documentation" {
		t.Fatalf("parsed %+v", acts)
	}
	bad := `{"not":"a list"}`
	if _, err := ParseActivities(&bad); err == nil {
		t.Fatal("expected error for non-list input")
	}
}

func TestCalculateStageETAs(t *testing.T) {
	leads := map[string]config.LeadTime{
		"PRE_ARRIVAL_DOCS": {StartDay: 0, EndDay: 2},
		"VESSEL_ARRIVAL":   {StartDay: 2, EndDay: 3},
	}
	if etas := CalculateStageETAs(nil, leads); etas != nil {
		t.Fatal("nil start date must yield nil estimates")
	}
	garbage := "not a date"
	if etas := CalculateStageETAs(&garbage, leads); etas != nil {
		t.Fatal("unparseable start date must yield nil estimates")
	}

	start := "2024-03-01T00:00:00Z"
	etas := CalculateStageETAs(&start, leads)
	eta, ok := etas["VESSEL_ARRIVAL"]
	if !ok || eta.Start == nil || eta.Completion == nil {
		t.Fatalf("missing ETA: %+v", etas)
	}
	if *eta.Start != "2024-03-03T00:00:00Z" || *eta.Completion != "2024-03-04T00:00:00Z" {
		t.Errorf("VESSEL_ARRIVAL window = %s..%s", *eta.Start, *eta.Completion)
	}
}

func TestStageCatalogCoversBothDirections(t *testing.T) {
	for _, st := range []string{domain.ShipmentImport, domain.ShipmentExport} {
		stages, ok := StageCatalog[st]
		if !ok || len(stages) == 0 {
			t.Fatalf("no catalog entries for %s", st)
		}
		for stage, tasks := range stages {
			if len(tasks) == 0 {
				t.Errorf("%s stage %q has no tasks", st, stage)
			}
		}
	}
}

func TestGeneratedIdentifiersAreStable(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if GenerateTrackingNumber("p1", now) != GenerateTrackingNumber("p1", now) {
		t.Error("tracking number not deterministic")
	}
	if GenerateTrackingNumber("p1", now) == GenerateTrackingNumber("p2", now) {
		t.Error("tracking number collision across projects")
	}
	slug := GenerateTrackingSlug("p1")
	if len(slug) != 12 || slug != GenerateTrackingSlug("p1") {
		t.Errorf("slug = %q", slug)
	}
	if GenerateShipmentNumber("p1", now)[:9] != "SHP-2024-" {
		t.Errorf("shipment number = %q", GenerateShipmentNumber("p1", now))
	}
}
