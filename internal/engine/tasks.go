package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"clearline/internal/domain"
)

// Activity is one unit of required clearance work. Two historical field-name
// schemes exist in stored data; UnmarshalJSON accepts both and the newer
// names win when both are present.
type Activity struct {
	ShipmentType string `json:"shipmentType"`
	Stage        string `json:"stage"`
	Substage     string `json:"substage"`
	Task         string `json:"task"`
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw struct {
		ShipmentType string `json:"shipmentType"`
		Stage        string `json:"stage"`
		Substage     string `json:"substage"`
		Task         string `json:"task"`
		System       string `json:"system"`
		Category     string `json:"category"`
		Subcategory  string `json:"subcategory"`
		ActivityName string `json:"activity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ShipmentType = firstNonEmpty(raw.ShipmentType, raw.System)
	a.Stage = firstNonEmpty(raw.Stage, raw.Category)
	a.Substage = firstNonEmpty(raw.Substage, raw.Subcategory)
	a.Task = firstNonEmpty(raw.Task, raw.ActivityName)
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseActivities decodes a project's stored activities list.
func ParseActivities(activitiesJSON *string) ([]Activity, error) {
	if activitiesJSON == nil || *activitiesJSON == "" {
		return nil, nil
	}
	var acts []Activity
	if err := json.Unmarshal([]byte(*activitiesJSON), &acts); err != nil {
		return nil, err
	}
	return acts, nil
}

// categoryKeywords is an ordered priority list, not parallel rules. The first
// keyword found as a substring of the lowercased stage name decides the
// category, so "Port Fees" lands in PAYMENT before any later check runs.
var categoryKeywords = []struct {
	Category string
	Keywords []string
}{
	{domain.CategoryDocumentation, []string{"document", "pre-arrival", "bl", "invoice", "packing"}},
	{domain.CategoryCustomsDeclaration, []string{"declaration", "customs", "tariff", "classification"}},
	{domain.CategoryPayment, []string{"payment", "duty", "fee", "tax", "vat"}},
	{domain.CategoryInspection, []string{"inspection", "quality", "standards", "ssmo", "quarantine"}},
	{domain.CategoryRelease, []string{"release", "clearance", "gate"}},
	{domain.CategoryDelivery, []string{"delivery", "transport", "loading", "transit", "truck"}},
}

func categoryFor(stage string) string {
	lowered := strings.ToLower(stage)
	for _, ck := range categoryKeywords {
		for _, kw := range ck.Keywords {
			if strings.Contains(lowered, kw) {
				return ck.Category
			}
		}
	}
	return domain.CategoryGeneral
}

// materializeTasks turns a project's activities into task records, one per
// shipmentType-stage-substage group. With no activities the default template
// applies instead. Zero tasks out is a valid outcome.
func (e Engine) materializeTasks(p domain.Project, activities []Activity) []domain.Task {
	now := e.now().UTC().Format(time.RFC3339)
	if len(activities) == 0 {
		return e.templateTasks(p, now)
	}

	type group struct {
		act   Activity
		names []string
	}
	var order []string
	groups := map[string]*group{}
	for _, a := range activities {
		key := a.ShipmentType + "-" + a.Stage + "-" + a.Substage
		g, ok := groups[key]
		if !ok {
			g = &group{act: a}
			groups[key] = g
			order = append(order, key)
		}
		if a.Task != "" {
			g.names = append(g.names, a.Task)
		}
	}

	tasks := make([]domain.Task, 0, len(order))
	for _, key := range order {
		g := groups[key]
		title := g.act.Substage
		if title == "" {
			title = g.act.Stage
		}
		tasks = append(tasks, domain.Task{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("task:"+p.ID+":"+key)).String(),
			ProjectID: p.ID,
			Title:     title,
			Category:  categoryFor(g.act.Stage),
			Status:    domain.StatusPending,
			Priority:  p.Priority,
			// Team members are seeded as assignees; the resolver treats a
			// non-empty list as already assigned.
			AssignedTo: append([]string(nil), p.Team...),
			DueDate:    p.EndDate,
			LinkedActivity: &domain.LinkedActivity{
				ProjectID:    p.ID,
				ShipmentType: g.act.ShipmentType,
				Stage:        g.act.Stage,
				Substage:     g.act.Substage,
				Task:         strings.Join(g.names, ", "),
			},
			AutoGenerated: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return tasks
}

func (e Engine) templateTasks(p domain.Project, now string) []domain.Task {
	var start *time.Time
	if p.StartDate != nil {
		if t, err := time.Parse(time.RFC3339, *p.StartDate); err == nil {
			start = &t
		}
	}
	shipmentType := InferShipmentType(p.Systems)
	tasks := make([]domain.Task, 0, len(defaultTaskTemplate))
	for i, tpl := range defaultTaskTemplate {
		stageType := tpl.StageType
		var due *string
		if start != nil {
			d := start.AddDate(0, 0, i).UTC().Format(time.RFC3339)
			due = &d
		}
		tasks = append(tasks, domain.Task{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte("task:"+p.ID+":template:"+tpl.Title)).String(),
			ProjectID: p.ID,
			Title:     tpl.Title,
			Category:  tpl.Category,
			Status:    domain.StatusPending,
			Priority:  p.Priority,
			StageType: &stageType,
			DueDate:   due,
			LinkedActivity: &domain.LinkedActivity{
				ProjectID:    p.ID,
				ShipmentType: shipmentType,
				Stage:        tpl.StageType,
				Task:         tpl.Title,
			},
			AutoGenerated: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return tasks
}
