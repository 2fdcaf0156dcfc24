package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clearline/internal/config"
)

// Identifiers are derived from the project id so that re-running a cascade
// for the same project yields the same numbers.

func GenerateTrackingNumber(projectID string, now time.Time) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("tracking:"+projectID))
	raw := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("CL%d%s", now.UTC().Year(), raw[:10])
}

func GenerateTrackingSlug(projectID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("slug:"+projectID))
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}

func GenerateShipmentNumber(projectID string, now time.Time) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("shipment:"+projectID))
	raw := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("SHP-%d-%s", now.UTC().Year(), raw[:8])
}

// StageETA holds the estimated window for one tracking stage.
type StageETA struct {
	Start      *string
	Completion *string
}

// CalculateStageETAs computes estimated start/completion timestamps per stage
// from the project start date and configured lead times. A nil start date
// yields a nil map, leaving every stage without estimates.
func CalculateStageETAs(startDate *string, leadTimes map[string]config.LeadTime) map[string]StageETA {
	if startDate == nil {
		return nil
	}
	start, err := time.Parse(time.RFC3339, *startDate)
	if err != nil {
		return nil
	}
	res := make(map[string]StageETA, len(leadTimes))
	for stage, lt := range leadTimes {
		s := start.AddDate(0, 0, lt.StartDay).UTC().Format(time.RFC3339)
		e := start.AddDate(0, 0, lt.EndDay).UTC().Format(time.RFC3339)
		res[stage] = StageETA{Start: &s, Completion: &e}
	}
	return res
}
