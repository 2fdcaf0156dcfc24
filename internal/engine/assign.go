package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clearline/internal/config"
	"clearline/internal/domain"
	"clearline/internal/repo"
)

const (
	reasonAlreadyAssigned = "Already assigned"
	reasonTeamMember      = "Assigned to project team member"
	reasonNoAssignee      = "No suitable assignee found"
)

// loadTracker keeps per-user open-task counts for one assignment batch. It is
// seeded once from the database and bumped locally as tasks are assigned, so
// later tasks in the batch see the load added by earlier ones.
type loadTracker struct {
	loads map[string]int
}

func newLoadTracker(ctx context.Context, r repo.Repo, tx *sql.Tx) (*loadTracker, error) {
	loads, err := r.UserLoadsTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	return &loadTracker{loads: loads}, nil
}

func (lt *loadTracker) bump(userID string) {
	lt.loads[userID]++
}

// leastLoaded picks the user with the fewest open tasks. Candidates arrive
// ordered by id, so ties break toward the lowest user id.
func (lt *loadTracker) leastLoaded(users []domain.User) *domain.User {
	if len(users) == 0 {
		return nil
	}
	best := users[0]
	bestLoad := lt.loads[best.ID]
	for _, u := range users[1:] {
		if lt.loads[u.ID] < bestLoad {
			best = u
			bestLoad = lt.loads[u.ID]
		}
	}
	return &best
}

// resolveAssignmentsTx runs the three-tier resolver over a task batch.
// Resolution is per-task sequential, not globally optimal.
func (e Engine) resolveAssignmentsTx(ctx context.Context, tx *sql.Tx, p domain.Project, tasks []domain.Task, cfg *config.Config) ([]domain.Assignment, int, error) {
	tracker, err := newLoadTracker(ctx, e.Repo, tx)
	if err != nil {
		return nil, 0, err
	}

	assigned := 0
	results := make([]domain.Assignment, 0, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if len(t.AssignedTo) > 0 {
			results = append(results, domain.Assignment{TaskID: t.ID, Title: t.Title, Reason: reasonAlreadyAssigned})
			continue
		}

		userID, reason, err := e.resolveOneTx(ctx, tx, p, t.Category, cfg, tracker)
		if err != nil {
			return nil, 0, err
		}
		if userID == "" {
			results = append(results, domain.Assignment{TaskID: t.ID, Title: t.Title, Reason: reasonNoAssignee})
			continue
		}

		t.AssignedTo = []string{userID}
		t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateTaskTx(ctx, tx, *t); err != nil {
			return nil, 0, err
		}
		tracker.bump(userID)
		assigned++
		uid := userID
		results = append(results, domain.Assignment{TaskID: t.ID, Title: t.Title, UserID: &uid, Reason: reason, Applied: true})
	}
	return results, assigned, nil
}

// resolveOneTx picks one assignee for a category, or "" when no tier yields
// a candidate.
func (e Engine) resolveOneTx(ctx context.Context, tx *sql.Tx, p domain.Project, category string, cfg *config.Config, tracker *loadTracker) (string, string, error) {
	// Rule tier. First rule that yields any candidate wins; later rules are
	// never consulted.
	rules, err := e.Repo.ActiveRulesByCategoryTx(ctx, tx, category)
	if err != nil {
		return "", "", err
	}
	for _, rule := range rules {
		if rule.UserID != nil && *rule.UserID != "" {
			return *rule.UserID, fmt.Sprintf("Assigned by rule for %s", category), nil
		}
		if rule.RoleTarget == nil || *rule.RoleTarget == "" {
			continue
		}
		pool, err := e.Repo.UsersByRoleTx(ctx, tx, *rule.RoleTarget)
		if err != nil {
			return "", "", err
		}
		if u := tracker.leastLoaded(pool); u != nil {
			return u.ID, fmt.Sprintf("Assigned by rule for %s (least loaded %s)", category, *rule.RoleTarget), nil
		}
	}

	// Default-mapping tier: first role in the category's configured list
	// with at least one user.
	for _, role := range cfg.Assignment.Defaults[category] {
		pool, err := e.Repo.UsersByRoleTx(ctx, tx, role)
		if err != nil {
			return "", "", err
		}
		if u := tracker.leastLoaded(pool); u != nil {
			return u.ID, fmt.Sprintf("Assigned to least loaded %s", role), nil
		}
	}

	// Team-fallback tier: first team member that is a real user, no load
	// balancing.
	for _, memberID := range p.Team {
		if _, err := e.Repo.GetUserTx(ctx, tx, memberID); err == repo.ErrNotFound {
			continue
		} else if err != nil {
			return "", "", err
		}
		return memberID, reasonTeamMember, nil
	}
	return "", "", nil
}
