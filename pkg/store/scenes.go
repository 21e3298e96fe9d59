package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/storyloom/storyloom/pkg/models"
)

const sceneColumns = `scene_id, story_id, sequence, title, text, image_prompt,
	image_url, audio_url, created_at, updated_at`

func scanScene(row pgx.Row) (*models.Scene, error) {
	var (
		s        models.Scene
		imageURL *string
		audioURL *string
	)
	err := row.Scan(
		&s.SceneID, &s.StoryID, &s.Sequence, &s.Title, &s.Text, &s.ImagePrompt,
		&imageURL, &audioURL, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan scene: %w", err)
	}
	if imageURL != nil {
		s.ImageURL = *imageURL
	}
	if audioURL != nil {
		s.AudioURL = *audioURL
	}
	return &s, nil
}

func validateScene(scene *models.Scene) error {
	if scene.SceneID == "" {
		return NewValidationError("scene_id", "must not be empty")
	}
	if scene.StoryID == "" {
		return NewValidationError("story_id", "must not be empty")
	}
	if scene.Sequence < 0 {
		return NewValidationError("sequence", "must not be negative")
	}
	if strings.TrimSpace(scene.Text) == "" {
		return NewValidationError("text", "must not be empty")
	}
	return nil
}

// InsertScene persists one finished scene. A duplicate (story_id, sequence)
// means another delivery already persisted this scene; callers treat
// ErrDuplicateScene as success.
func (r *Stories) InsertScene(ctx context.Context, scene *models.Scene) (*models.Scene, error) {
	if err := validateScene(scene); err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO scenes (scene_id, story_id, sequence, title, text, image_prompt, image_url, audio_url)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
		RETURNING `+sceneColumns,
		scene.SceneID, scene.StoryID, scene.Sequence, scene.Title,
		scene.Text, scene.ImagePrompt, scene.ImageURL, scene.AudioURL,
	)

	created, err := scanScene(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, fmt.Errorf("story %s sequence %d: %w",
				scene.StoryID, scene.Sequence, ErrDuplicateScene)
		}
		return nil, fmt.Errorf("failed to insert scene: %w", err)
	}

	slog.DebugContext(ctx, "Scene persisted",
		"story_id", created.StoryID,
		"sequence", created.Sequence)
	return created, nil
}

// InsertScenes persists a batch of scenes in one statement, all-or-nothing.
// Any duplicate (story_id, sequence) in the batch fails the whole insert with
// ErrDuplicateScene.
func (r *Stories) InsertScenes(ctx context.Context, scenes []*models.Scene) error {
	if len(scenes) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(scenes)*8)
	)
	sb.WriteString(`INSERT INTO scenes
		(scene_id, story_id, sequence, title, text, image_prompt, image_url, audio_url)
		VALUES `)
	for i, scene := range scenes {
		if err := validateScene(scene); err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, NULLIF($%d, ''), NULLIF($%d, ''))",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args,
			scene.SceneID, scene.StoryID, scene.Sequence, scene.Title,
			scene.Text, scene.ImagePrompt, scene.ImageURL, scene.AudioURL)
	}

	if _, err := r.pool.Exec(ctx, sb.String(), args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("batch insert: %w", ErrDuplicateScene)
		}
		return fmt.Errorf("failed to insert scenes: %w", err)
	}
	return nil
}

// ListScenes returns a story's scenes ordered by sequence.
func (r *Stories) ListScenes(ctx context.Context, storyID string) ([]*models.Scene, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE story_id = $1 ORDER BY sequence ASC`,
		storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	defer rows.Close()

	scenes := make([]*models.Scene, 0, 8)
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scenes: %w", err)
	}
	return scenes, nil
}
