package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/japaniel/lexercise/pkg/exercise"
)

var _ exercise.Store = (*Store)(nil)

const exerciseColumns = `id, type, language,
	IFNULL(term_id, 0), IFNULL(term_example_id, 0), IFNULL(term_pronunciation_id, 0),
	IFNULL(term_lexical_id, 0), IFNULL(term_definition_id, 0), IFNULL(term_image_id, 0),
	additional_content, created_at`

// Create inserts ex and its levels in one transaction. A per-type unique
// index violation is reported as exercise.ErrConflict.
func (s *Store) Create(ctx context.Context, ex exercise.Exercise) (exercise.Exercise, error) {
	content, err := json.Marshal(ex.Content)
	if err != nil {
		return exercise.Exercise{}, fmt.Errorf("encode additional content: %w", err)
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return exercise.Exercise{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO exercises
		(type, language, term_id, term_example_id, term_pronunciation_id, term_lexical_id,
		 term_definition_id, term_image_id, additional_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ex.Type), ex.Language,
		nullableInt64(ex.TermID), nullableInt64(ex.TermExampleID), nullableInt64(ex.TermPronunciationID),
		nullableInt64(ex.TermLexicalID), nullableInt64(ex.TermDefinitionID), nullableInt64(ex.TermImageID),
		string(content), ex.CreatedAt)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return exercise.Exercise{}, fmt.Errorf("insert %s exercise: %w", ex.Type, exercise.ErrConflict)
		}
		return exercise.Exercise{}, fmt.Errorf("insert exercise: %w", err)
	}
	if ex.ID, err = res.LastInsertId(); err != nil {
		return exercise.Exercise{}, fmt.Errorf("exercise id: %w", err)
	}

	for _, level := range ex.Levels {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO exercise_levels (exercise_id, level) VALUES (?, ?)`, ex.ID, level); err != nil {
			return exercise.Exercise{}, fmt.Errorf("insert exercise level: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return exercise.Exercise{}, fmt.Errorf("commit exercise: %w", err)
	}
	return ex, nil
}

// Get returns the exercise with the given id and type.
func (s *Store) Get(ctx context.Context, id int64, t exercise.Type) (exercise.Exercise, error) {
	var ex exercise.Exercise
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE id = ? AND type = ?`, id, string(t)).Scan(
		&ex.ID, &ex.Type, &ex.Language,
		&ex.TermID, &ex.TermExampleID, &ex.TermPronunciationID,
		&ex.TermLexicalID, &ex.TermDefinitionID, &ex.TermImageID,
		&content, &ex.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return exercise.Exercise{}, fmt.Errorf("%w: %s exercise %d", exercise.ErrNotFound, t, id)
	}
	if err != nil {
		return exercise.Exercise{}, fmt.Errorf("get exercise %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(content), &ex.Content); err != nil {
		return exercise.Exercise{}, fmt.Errorf("decode additional content of exercise %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT level FROM exercise_levels WHERE exercise_id = ? ORDER BY level`, id)
	if err != nil {
		return exercise.Exercise{}, fmt.Errorf("query exercise levels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		if err := rows.Scan(&level); err != nil {
			return exercise.Exercise{}, err
		}
		ex.Levels = append(ex.Levels, level)
	}
	return ex, rows.Err()
}

// inCardset matches exercises whose term, or whose lexical's term, is on a
// card of the cardset bound to its placeholder.
const inCardset = `EXISTS (SELECT 1 FROM cards c WHERE c.cardset_id = ? AND (
	c.term_id = e.term_id OR
	c.term_id = (SELECT tl.term_id FROM term_lexicals tl WHERE tl.id = e.term_lexical_id)))`

// listFilter returns the WHERE clause shared by every listing partition.
func listFilter(q exercise.ListQuery) (string, []any) {
	var args []any
	where := []string{"e.language IN (" + placeholders(len(q.Languages)) + ")"}
	for _, l := range q.Languages {
		args = append(args, l)
	}
	if !q.AnyType() {
		where = append(where, "e.type IN ("+placeholders(len(q.Types))+")")
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	if len(q.Levels) > 0 {
		where = append(where, "EXISTS (SELECT 1 FROM exercise_levels l WHERE l.exercise_id = e.id AND l.level IN ("+placeholders(len(q.Levels))+"))")
		for _, l := range q.Levels {
			args = append(args, l)
		}
	}
	return strings.Join(where, " AND "), args
}

// List returns one page of the seeded ordering. Exercises on the cardset, if
// any, come first under the constant key '', ordered by id; the others follow
// ordered by seed_key(id, seed).
func (s *Store) List(ctx context.Context, q exercise.ListQuery, offset, limit int) ([]exercise.Entry, error) {
	filter, fargs := listFilter(q)

	var query string
	var args []any
	if q.CardsetID == 0 {
		query = `SELECT e.id, e.type FROM exercises e WHERE ` + filter + `
			ORDER BY seed_key(e.id, ?), e.id LIMIT ? OFFSET ?`
		args = append(append(args, fargs...), q.Seed, limit, offset)
	} else {
		query = `SELECT id, type FROM (
			SELECT e.id, e.type, '' AS sort_key FROM exercises e
			WHERE ` + filter + ` AND ` + inCardset + `
			UNION ALL
			SELECT e.id, e.type, seed_key(e.id, ?) AS sort_key FROM exercises e
			WHERE ` + filter + ` AND NOT ` + inCardset + `
		) ORDER BY sort_key, id LIMIT ? OFFSET ?`
		args = append(args, fargs...)
		args = append(args, q.CardsetID, q.Seed)
		args = append(args, fargs...)
		args = append(args, q.CardsetID, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()
	var out []exercise.Entry
	for rows.Next() {
		var e exercise.Entry
		if err := rows.Scan(&e.ID, &e.Type); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendHistory records one attempt. Rows are never updated.
func (s *Store) AppendHistory(ctx context.Context, h exercise.History) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO exercise_history
		(id, exercise_id, user_id, created_at, correct, response, request)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID.String(), h.ExerciseID, h.UserID, h.CreatedAt, h.Correct, string(h.Response), string(h.Request))
	if err != nil {
		return fmt.Errorf("insert exercise history: %w", err)
	}
	return nil
}

// History returns the attempts on an exercise, newest first. An empty userID
// returns every user's attempts.
func (s *Store) History(ctx context.Context, exerciseID int64, userID string) ([]exercise.History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, exercise_id, user_id, created_at, correct, response, request
		FROM exercise_history
		WHERE exercise_id = ? AND (? = '' OR user_id = ?)
		ORDER BY created_at DESC, rowid DESC`, exerciseID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query exercise history: %w", err)
	}
	defer rows.Close()
	var out []exercise.History
	for rows.Next() {
		var h exercise.History
		var id string
		var response, request []byte
		if err := rows.Scan(&id, &h.ExerciseID, &h.UserID, &h.CreatedAt, &h.Correct, &response, &request); err != nil {
			return nil, err
		}
		if h.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse history id %q: %w", id, err)
		}
		h.Response = response
		h.Request = request
		out = append(out, h)
	}
	return out, rows.Err()
}
