// Package store implements the durable repository for stories and scenes on
// PostgreSQL. All status changes go through the lifecycle guard: illegal
// transitions are rejected here, not in callers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storyloom/storyloom/pkg/models"
)

const uniqueViolationCode = "23505"

// Stories is the repository for story rows and their scenes.
type Stories struct {
	pool *pgxpool.Pool
}

// NewStories creates a story repository on the given pool.
func NewStories(pool *pgxpool.Pool) *Stories {
	return &Stories{pool: pool}
}

const storyColumns = `story_id, title, prompt, user_id, status, error,
	story_metadata, claimed_by, attempts, last_heartbeat, created_at, updated_at`

func scanStory(row pgx.Row) (*models.Story, error) {
	var (
		s        models.Story
		errText  *string
		metadata []byte
		claimed  *string
	)
	err := row.Scan(
		&s.StoryID, &s.Title, &s.Prompt, &s.UserID, &s.Status, &errText,
		&metadata, &claimed, &s.Attempts, &s.LastHeartbeat, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan story: %w", err)
	}
	if errText != nil {
		s.Error = *errText
	}
	if claimed != nil {
		s.ClaimedBy = *claimed
	}
	if len(metadata) > 0 {
		var plan models.StoryPlan
		if err := json.Unmarshal(metadata, &plan); err != nil {
			return nil, fmt.Errorf("failed to decode story metadata: %w", err)
		}
		s.StoryMetadata = &plan
	}
	return &s, nil
}

// Create persists a new pending story. The row must exist before the job is
// enqueued so a fast worker never dequeues an id it cannot read back.
func (r *Stories) Create(ctx context.Context, story *models.Story) (*models.Story, error) {
	if story.StoryID == "" {
		return nil, NewValidationError("story_id", "must not be empty")
	}
	if strings.TrimSpace(story.Prompt) == "" {
		return nil, NewValidationError("prompt", "must not be empty")
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO stories (story_id, title, prompt, user_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+storyColumns,
		story.StoryID, story.Title, story.Prompt, story.UserID, models.StatusPending,
	)

	created, err := scanStory(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}

	slog.InfoContext(ctx, "Story created",
		"story_id", created.StoryID,
		"user_id", created.UserID,
		"status", created.Status)
	return created, nil
}

// Get returns a single story by id.
func (r *Stories) Get(ctx context.Context, storyID string) (*models.Story, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE story_id = $1`, storyID)
	return scanStory(row)
}

// GetDetail returns a story joined with its ordered scenes.
func (r *Stories) GetDetail(ctx context.Context, storyID string) (*models.StoryDetail, error) {
	story, err := r.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	scenes, err := r.ListScenes(ctx, storyID)
	if err != nil {
		return nil, err
	}
	return &models.StoryDetail{Story: story, Scenes: scenes}, nil
}

// List returns stories matching the filters, newest first.
func (r *Stories) List(ctx context.Context, filters models.StoryFilters) (*models.StoryListResponse, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	where := "TRUE"
	args := []any{}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.UserID != "" {
		args = append(args, filters.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if strings.TrimSpace(filters.Search) != "" {
		// Served by idx_stories_search_gin.
		args = append(args, filters.Search)
		where += fmt.Sprintf(
			" AND to_tsvector('english', title || ' ' || prompt) @@ plainto_tsquery('english', $%d)",
			len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM stories WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count stories: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE `+where+`
		 ORDER BY created_at DESC
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	stories := make([]*models.Story, 0, limit)
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stories: %w", err)
	}

	return &models.StoryListResponse{
		Stories:    stories,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// CountByStatus returns the number of stories per lifecycle state.
func (r *Stories) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM stories GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count stories by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int, 4)
	for rows.Next() {
		var status models.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SetStatus moves a story to next, enforcing the lifecycle. errMsg is stored
// on terminal failure and cleared otherwise. The guard runs inside the UPDATE
// itself so concurrent writers cannot race past it.
func (r *Stories) SetStatus(ctx context.Context, storyID string, next models.Status, errMsg string) error {
	sources := models.TransitionSources(next)
	if len(sources) == 0 {
		return fmt.Errorf("no status may transition to %s: %w", next, ErrInvalidTransition)
	}
	from := make([]string, len(sources))
	for i, s := range sources {
		from[i] = string(s)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE stories
		SET status = $2, error = NULLIF($3, ''), updated_at = now()
		WHERE story_id = $1 AND status = ANY($4)`,
		storyID, next, errMsg, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update story status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.Get(ctx, storyID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("story %s: %s -> %s: %w",
			storyID, current.Status, next, ErrInvalidTransition)
	}

	slog.InfoContext(ctx, "Story status updated",
		"story_id", storyID,
		"status", next,
		"error", errMsg)
	return nil
}

// SetPlan stores the planning-stage output. Only an in-flight story may
// receive a plan.
func (r *Stories) SetPlan(ctx context.Context, storyID string, plan *models.StoryPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode story plan: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE stories
		SET story_metadata = $2, updated_at = now()
		WHERE story_id = $1 AND status = $3`,
		storyID, payload, models.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to store story plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, getErr := r.Get(ctx, storyID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("story %s is %s, plan writes need processing: %w",
			storyID, current.Status, ErrInvalidTransition)
	}
	return nil
}

// Claim marks the story processing on behalf of workerID and bumps the
// attempt counter. A pending story is always claimable; a processing one only
// when the previous claim went stale (no heartbeat within staleAfter) or
// belongs to the same worker. Terminal stories surface ErrInvalidTransition,
// fresh foreign claims ErrAlreadyClaimed.
func (r *Stories) Claim(ctx context.Context, storyID, workerID string, staleAfter time.Duration) (*models.Story, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE stories
		SET status = $4, claimed_by = $2, last_heartbeat = now(),
		    attempts = attempts + 1, updated_at = now()
		WHERE story_id = $1
		  AND status = ANY($5)
		  AND (claimed_by IS NULL
		       OR claimed_by = $2
		       OR last_heartbeat IS NULL
		       OR last_heartbeat < now() - make_interval(secs => $3))
		RETURNING `+storyColumns,
		storyID, workerID, staleAfter.Seconds(), models.StatusProcessing,
		[]string{string(models.StatusPending), string(models.StatusProcessing)},
	)

	claimed, err := scanStory(row)
	if err == nil {
		return claimed, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to claim story: %w", err)
	}

	// No row matched: distinguish missing, terminal and freshly claimed.
	current, getErr := r.Get(ctx, storyID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.IsTerminal() {
		return nil, fmt.Errorf("story %s is %s: %w", storyID, current.Status, ErrInvalidTransition)
	}
	return nil, fmt.Errorf("story %s held by %s: %w", storyID, current.ClaimedBy, ErrAlreadyClaimed)
}

// DeleteTerminalBefore removes completed and failed stories last touched
// before cutoff. Scene rows go with them via the cascade; in-flight stories
// are never touched. Returns how many stories were deleted.
func (r *Stories) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM stories
		WHERE status = ANY($1) AND updated_at < $2`,
		[]string{string(models.StatusCompleted), string(models.StatusFailed)}, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old stories: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Heartbeat re-stamps the claim while a worker processes the story.
func (r *Stories) Heartbeat(ctx context.Context, storyID, workerID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE stories
		SET last_heartbeat = now(), updated_at = now()
		WHERE story_id = $1 AND claimed_by = $2 AND status = $3`,
		storyID, workerID, models.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to heartbeat story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("story %s: %w", storyID, ErrAlreadyClaimed)
	}
	return nil
}
