package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"localassist/pkg/logx"
)

// timestampLayout is fixed width so stored values sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Layouts accepted when reading timestamps, including those written by older tools.
//
//nolint:gochecknoglobals // Read-only parse table
var timestampParseLayouts = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

const promptColumns = "id, title, content, type, tags, version, is_active, created_at, updated_at"

// PromptStore provides CRUD and activation over the prompts table.
// Writes run in immediate transactions on a single connection, so
// concurrent activations are serialized.
type PromptStore struct {
	db     *sql.DB
	logger *logx.Logger
	now    func() time.Time
}

// NewPromptStore creates a store over an initialized database.
func NewPromptStore(db *sql.DB) *PromptStore {
	return &PromptStore{
		db:     db,
		logger: logx.NewLogger("prompt-store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new prompt with version 1.
// When IsActive is set, the type's current active prompt is deactivated in the same transaction.
//
//nolint:gocritic // params passed by value to keep callers' structs untouched
func (s *PromptStore) Create(ctx context.Context, params CreatePromptParams) (*Prompt, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	var created *Prompt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.stamp()
		if params.IsActive {
			if err := deactivateType(ctx, tx, params.Type, 0, now); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO prompts (title, content, type, tags, version, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
			params.Title, params.Content, params.Type, params.Tags, params.IsActive, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert prompt: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read prompt id: %w", err)
		}

		created, err = getPrompt(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	logx.Debug(ctx, "store", "created prompt %d type=%s active=%t", created.ID, created.Type, created.IsActive)
	return created, nil
}

// Get returns the prompt with the given id or ErrNotFound.
func (s *PromptStore) Get(ctx context.Context, id int64) (*Prompt, error) {
	return getPrompt(ctx, s.db, id)
}

// Update applies the supplied fields.
// When the resulting prompt is active, every other active row of its (possibly new) type is deactivated.
//
//nolint:gocritic // params passed by value to keep callers' structs untouched
func (s *PromptStore) Update(ctx context.Context, id int64, params UpdatePromptParams) (*Prompt, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	var updated *Prompt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getPrompt(ctx, tx, id)
		if err != nil {
			return err
		}

		next := *current
		if params.Title != nil {
			next.Title = *params.Title
		}
		if params.Content != nil {
			next.Content = *params.Content
		}
		if params.Type != nil {
			next.Type = *params.Type
		}
		if params.Tags != nil {
			next.Tags = *params.Tags
		}
		if params.IsActive != nil {
			next.IsActive = *params.IsActive
		}

		now := s.stamp()
		if next.IsActive {
			if err := deactivateType(ctx, tx, next.Type, id, now); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE prompts SET title = ?, content = ?, type = ?, tags = ?, is_active = ?, updated_at = ?
			 WHERE id = ?`,
			next.Title, next.Content, next.Type, next.Tags, next.IsActive, now, id)
		if err != nil {
			return fmt.Errorf("failed to update prompt %d: %w", id, err)
		}

		updated, err = getPrompt(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the prompt. Deleting the active prompt leaves its type without one.
func (s *PromptStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prompt %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("prompt %d: %w", id, ErrNotFound)
	}
	logx.Debug(ctx, "store", "deleted prompt %d", id)
	return nil
}

// Activate makes the prompt the only active one of its type.
// Activating an already active prompt writes nothing.
func (s *PromptStore) Activate(ctx context.Context, id int64) (*Prompt, error) {
	var activated *Prompt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		target, err := getPrompt(ctx, tx, id)
		if err != nil {
			return err
		}

		now := s.stamp()
		if err := deactivateType(ctx, tx, target.Type, id, now); err != nil {
			return err
		}
		if !target.IsActive {
			if _, err := tx.ExecContext(ctx,
				`UPDATE prompts SET is_active = 1, updated_at = ? WHERE id = ? AND is_active = 0`,
				now, id); err != nil {
				return fmt.Errorf("failed to activate prompt %d: %w", id, err)
			}
		}

		activated, err = getPrompt(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Activated prompt %d (%q) for type %q", activated.ID, activated.Title, activated.Type)
	return activated, nil
}

// List returns one page of prompts ordered by id and the size of the whole filtered set.
func (s *PromptStore) List(ctx context.Context, opts ListPromptsOpts) ([]Prompt, int, error) {
	opts = opts.Normalize()

	var (
		where []string
		args  []any
	)
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, opts.Type)
	}
	if opts.Tags != "" {
		where = append(where, `LOWER(tags) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(opts.Tags))+"%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prompts"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count prompts: %w", err)
	}

	pageArgs := append(append([]any(nil), args...), opts.PageSize, (opts.Page-1)*opts.PageSize)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+promptColumns+" FROM prompts"+clause+" ORDER BY id LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	prompts := []Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, 0, err
		}
		prompts = append(prompts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate prompts: %w", err)
	}

	return prompts, total, nil
}

// ActiveByType returns the active prompt for a role type or ErrNotFound.
func (s *PromptStore) ActiveByType(ctx context.Context, promptType string) (*Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+promptColumns+" FROM prompts WHERE type = ? AND is_active = 1 ORDER BY id DESC LIMIT 1",
		promptType)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no active prompt for type %q: %w", promptType, ErrNotFound)
	}
	return p, err
}

func (s *PromptStore) stamp() string {
	return s.now().UTC().Format(timestampLayout)
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *PromptStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getPrompt(ctx context.Context, q queryer, id int64) (*Prompt, error) {
	row := q.QueryRowContext(ctx, "SELECT "+promptColumns+" FROM prompts WHERE id = ?", id)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prompt %d: %w", id, ErrNotFound)
	}
	return p, err
}

// deactivateType clears is_active on every active row of promptType except keepID.
func deactivateType(ctx context.Context, tx *sql.Tx, promptType string, keepID int64, now string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE prompts SET is_active = 0, updated_at = ? WHERE type = ? AND id != ? AND is_active = 1`,
		now, promptType, keepID)
	if err != nil {
		return fmt.Errorf("failed to deactivate prompts of type %q: %w", promptType, err)
	}
	return nil
}

func scanPrompt(row rowScanner) (*Prompt, error) {
	var (
		p                    Prompt
		tags                 sql.NullString
		isActive             sql.NullBool
		createdAt, updatedAt sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Type, &tags, &p.Version, &isActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers map ErrNoRows to ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan prompt: %w", err)
	}
	p.Tags = tags.String
	p.IsActive = isActive.Bool
	p.CreatedAt = parseTimestamp(createdAt.String)
	p.UpdatedAt = parseTimestamp(updatedAt.String)
	return &p, nil
}

func parseTimestamp(value string) time.Time {
	for _, layout := range timestampParseLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
