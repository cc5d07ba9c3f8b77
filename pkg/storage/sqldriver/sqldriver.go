// Package sqldriver implements storage.Driver over database/sql with sqlx.
// The sqlite and postgres packages open the connection, apply migrations,
// and wrap this driver with their dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// LockSuffix is appended to row reads made inside a write transaction.
	LockSuffix string
}

// Driver implements storage.Driver on a *sqlx.DB.
type Driver struct {
	DB      *sqlx.DB
	dialect Dialect
}

var _ storage.Driver = (*Driver)(nil)

// New wraps db. Migrations must already be applied.
func New(db *sqlx.DB, dialect Dialect) *Driver {
	return &Driver{DB: db, dialect: dialect}
}

// Migrate applies the embedded migrations in dir of source to db.
func Migrate(source fs.FS, dir string, dbName string, dbDriver database.Driver) error {
	src, err := iofs.New(source, dir)
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

type profileRow struct {
	UserID      string `db:"user_id"`
	Description string `db:"description"`
	Interests   string `db:"interests"`
	Embedding   []byte `db:"embedding"`
	UpdatedAt   int64  `db:"description_updated_at"`
}

type groupRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Type        string `db:"type"`
	Description string `db:"description"`
}

type memberGroupRow struct {
	UserID      string `db:"user_id"`
	ID          string `db:"id"`
	Name        string `db:"name"`
	Type        string `db:"type"`
	Description string `db:"description"`
}

type interactionRow struct {
	ID           string `db:"id"`
	UserID       string `db:"user_id"`
	OtherUserID  string `db:"other_user_id"`
	GroupID      string `db:"group_id"`
	Messages     string `db:"messages"`
	Summary      string `db:"summary"`
	Embedding    []byte `db:"embedding"`
	DerivedTurns int    `db:"derived_turns"`
	UpdatedAt    int64  `db:"updated_at"`
}

const (
	profileColumns     = `user_id, description, interests, embedding, description_updated_at`
	interactionColumns = `id, user_id, other_user_id, group_id, messages, summary, embedding, derived_turns, updated_at`
)

func (d *Driver) GetProfile(ctx context.Context, userID string) (*social.UserProfile, error) {
	var row profileRow
	err := d.DB.GetContext(ctx, &row, d.DB.Rebind(`SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(storage.KindProfile, userID)
	}
	if err != nil {
		return nil, social.Unavailable("get profile", err)
	}

	p, err := row.toProfile()
	if err != nil {
		return nil, err
	}

	p.Groups, err = d.GroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Driver) ListProfiles(ctx context.Context, groupID string) ([]*social.UserProfile, error) {
	var (
		rows []profileRow
		err  error
	)
	if groupID == "" {
		err = d.DB.SelectContext(ctx, &rows, `SELECT `+profileColumns+` FROM profiles ORDER BY user_id`)
	} else {
		if _, gerr := d.GetGroup(ctx, groupID); gerr != nil {
			if errors.Is(gerr, social.ErrNotFound) {
				return nil, social.UnknownGroupError(groupID)
			}
			return nil, gerr
		}
		err = d.DB.SelectContext(ctx, &rows, d.DB.Rebind(`
			SELECT p.user_id, p.description, p.interests, p.embedding, p.description_updated_at
			FROM profiles p
			JOIN memberships m ON m.user_id = p.user_id
			WHERE m.group_id = ?
			ORDER BY p.user_id`), groupID)
	}
	if err != nil {
		return nil, social.Unavailable("list profiles", err)
	}

	groups, err := d.allMemberships(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*social.UserProfile, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProfile()
		if err != nil {
			return nil, err
		}
		if gs, ok := groups[p.UserID]; ok {
			p.Groups = gs
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *Driver) PutProfile(ctx context.Context, p *social.UserProfile) error {
	if p == nil {
		return errors.New("cannot store nil profile")
	}

	interests, err := json.Marshal(nonNil(p.Interests))
	if err != nil {
		return fmt.Errorf("encoding interests: %w", err)
	}

	return d.withTx(ctx, "put profile", func(tx *sqlx.Tx) error {
		ids := uniqueIDs(p.GroupIDs())
		if err := d.checkGroups(ctx, tx, ids); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO profiles (user_id, description, interests, embedding, description_updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				description = excluded.description,
				interests = excluded.interests,
				embedding = excluded.embedding,
				description_updated_at = excluded.description_updated_at`),
			p.UserID, p.Description, string(interests), storage.EncodeEmbedding(p.DescriptionEmbedding), unixNano(p.DescriptionUpdatedAt))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM memberships WHERE user_id = ?`), p.UserID); err != nil {
			return err
		}
		for pos, gid := range ids {
			_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO memberships (group_id, user_id, position) VALUES (?, ?, ?)`), gid, p.UserID, pos)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Driver) ReplaceDescription(ctx context.Context, userID, description string, embedding []float32, at time.Time) error {
	res, err := d.DB.ExecContext(ctx, d.DB.Rebind(`
		UPDATE profiles SET description = ?, embedding = ?, description_updated_at = ?
		WHERE user_id = ?`),
		description, storage.EncodeEmbedding(embedding), unixNano(at), userID)
	if err != nil {
		return social.Unavailable("replace description", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return social.Unavailable("replace description", err)
	}
	if n == 0 {
		return storage.NotFound(storage.KindProfile, userID)
	}
	return nil
}

func (d *Driver) CreateGroup(ctx context.Context, g *social.Group) error {
	if g == nil {
		return errors.New("cannot store nil group")
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	_, err := d.DB.ExecContext(ctx, d.DB.Rebind(`
		INSERT INTO social_groups (id, name, type, description, created_at) VALUES (?, ?, ?, ?, ?)`),
		g.ID, g.Name, string(g.Type), g.Description, time.Now().UnixNano())
	if err != nil {
		return social.Unavailable("create group", err)
	}
	return nil
}

func (d *Driver) GetGroup(ctx context.Context, groupID string) (*social.Group, error) {
	var row groupRow
	err := d.DB.GetContext(ctx, &row, d.DB.Rebind(`SELECT id, name, type, description FROM social_groups WHERE id = ?`), groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(storage.KindGroup, groupID)
	}
	if err != nil {
		return nil, social.Unavailable("get group", err)
	}
	g := row.toGroup()
	return &g, nil
}

func (d *Driver) GroupsForUser(ctx context.Context, userID string) ([]social.Group, error) {
	var rows []groupRow
	err := d.DB.SelectContext(ctx, &rows, d.DB.Rebind(`
		SELECT g.id, g.name, g.type, g.description
		FROM memberships m
		JOIN social_groups g ON g.id = m.group_id
		WHERE m.user_id = ?
		ORDER BY m.position`), userID)
	if err != nil {
		return nil, social.Unavailable("groups for user", err)
	}

	out := make([]social.Group, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toGroup())
	}
	return out, nil
}

func (d *Driver) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	if _, err := d.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, social.ErrNotFound) {
			return nil, social.UnknownGroupError(groupID)
		}
		return nil, err
	}

	members := []string{}
	err := d.DB.SelectContext(ctx, &members, d.DB.Rebind(`SELECT user_id FROM memberships WHERE group_id = ? ORDER BY user_id`), groupID)
	if err != nil {
		return nil, social.Unavailable("group members", err)
	}
	return members, nil
}

func (d *Driver) AddMember(ctx context.Context, groupID, userID string) error {
	return d.withTx(ctx, "add member", func(tx *sqlx.Tx) error {
		if err := d.checkGroups(ctx, tx, []string{groupID}); err != nil {
			return err
		}

		var next int
		err := tx.GetContext(ctx, &next, tx.Rebind(`SELECT COALESCE(MAX(position) + 1, 0) FROM memberships WHERE user_id = ?`), userID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO memberships (group_id, user_id, position) VALUES (?, ?, ?)
			ON CONFLICT (group_id, user_id) DO NOTHING`), groupID, userID, next)
		return err
	})
}

func (d *Driver) UpsertInteraction(ctx context.Context, key social.PairKey, fn func(*social.Interaction) error) (*social.Interaction, error) {
	var out *social.Interaction
	err := d.withTx(ctx, "upsert interaction", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO interactions (id, pair_key, user_id, other_user_id, group_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (pair_key) DO NOTHING`),
			uuid.NewString(), key.String(), key.Low, key.High, key.GroupID, int64(0))
		if err != nil {
			return err
		}

		var row interactionRow
		err = tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+interactionColumns+` FROM interactions WHERE pair_key = ?`+d.dialect.LockSuffix), key.String())
		if err != nil {
			return err
		}

		rec, err := row.toInteraction()
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}

		if err := writeInteraction(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) UpdateInteraction(ctx context.Context, id string, fn func(*social.Interaction) (bool, error)) (*social.Interaction, error) {
	var out *social.Interaction
	err := d.withTx(ctx, "update interaction", func(tx *sqlx.Tx) error {
		var row interactionRow
		err := tx.GetContext(ctx, &row, tx.Rebind(`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`+d.dialect.LockSuffix), id)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotFound(storage.KindInteraction, id)
		}
		if err != nil {
			return err
		}

		rec, err := row.toInteraction()
		if err != nil {
			return err
		}
		changed, err := fn(rec)
		if err != nil {
			return err
		}
		out = rec
		if !changed {
			return nil
		}
		return writeInteraction(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) GetInteraction(ctx context.Context, id string) (*social.Interaction, error) {
	var row interactionRow
	err := d.DB.GetContext(ctx, &row, d.DB.Rebind(`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound(storage.KindInteraction, id)
	}
	if err != nil {
		return nil, social.Unavailable("get interaction", err)
	}
	return row.toInteraction()
}

func (d *Driver) InteractionsForUser(ctx context.Context, userID, groupID string) ([]*social.Interaction, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE (user_id = ? OR other_user_id = ?)`
	args := []any{userID, userID}
	if groupID != "" {
		query += ` AND group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	var rows []interactionRow
	if err := d.DB.SelectContext(ctx, &rows, d.DB.Rebind(query), args...); err != nil {
		return nil, social.Unavailable("list interactions", err)
	}
	return toInteractions(rows)
}

func (d *Driver) StaleInteractions(ctx context.Context, limit int) ([]*social.Interaction, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE derived_turns < turn_count ORDER BY updated_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []interactionRow
	if err := d.DB.SelectContext(ctx, &rows, d.DB.Rebind(query), args...); err != nil {
		return nil, social.Unavailable("stale interactions", err)
	}
	return toInteractions(rows)
}

func (d *Driver) AddFriend(ctx context.Context, a, b string) error {
	return d.withTx(ctx, "add friend", func(tx *sqlx.Tx) error {
		now := time.Now().UnixNano()
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			_, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO friends (user_id, friend_id, created_at) VALUES (?, ?, ?)
				ON CONFLICT (user_id, friend_id) DO NOTHING`), pair[0], pair[1], now)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Driver) Friends(ctx context.Context, userID string) ([]string, error) {
	out := []string{}
	err := d.DB.SelectContext(ctx, &out, d.DB.Rebind(`SELECT friend_id FROM friends WHERE user_id = ? ORDER BY friend_id`), userID)
	if err != nil {
		return nil, social.Unavailable("friends", err)
	}
	return out, nil
}

func (d *Driver) Close() error {
	return d.DB.Close()
}

// withTx runs fn in a transaction. Errors already classified by the social
// package pass through, everything else is reported as unavailable storage.
func (d *Driver) withTx(ctx context.Context, op string, fn func(*sqlx.Tx) error) error {
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return social.Unavailable(op, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if isClassified(err) {
			return err
		}
		return social.Unavailable(op, err)
	}

	if err := tx.Commit(); err != nil {
		return social.Unavailable(op, err)
	}
	return nil
}

func (d *Driver) checkGroups(ctx context.Context, tx *sqlx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`SELECT id FROM social_groups WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}

	var found []string
	if err := tx.SelectContext(ctx, &found, tx.Rebind(query), args...); err != nil {
		return err
	}

	known := make(map[string]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return social.UnknownGroupError(id)
		}
	}
	return nil
}

func (d *Driver) allMemberships(ctx context.Context) (map[string][]social.Group, error) {
	var rows []memberGroupRow
	err := d.DB.SelectContext(ctx, &rows, `
		SELECT m.user_id, g.id, g.name, g.type, g.description
		FROM memberships m
		JOIN social_groups g ON g.id = m.group_id
		ORDER BY m.user_id, m.position`)
	if err != nil {
		return nil, social.Unavailable("memberships", err)
	}

	out := make(map[string][]social.Group)
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], groupRow{ID: row.ID, Name: row.Name, Type: row.Type, Description: row.Description}.toGroup())
	}
	return out, nil
}

func writeInteraction(ctx context.Context, tx *sqlx.Tx, rec *social.Interaction) error {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE interactions SET messages = ?, turn_count = ?, summary = ?, embedding = ?, derived_turns = ?, updated_at = ?
		WHERE id = ?`),
		string(messages), len(rec.Messages), rec.Summary, storage.EncodeEmbedding(rec.Embedding), rec.DerivedTurns, unixNano(rec.Timestamp), rec.ID)
	return err
}

func (r profileRow) toProfile() (*social.UserProfile, error) {
	interests := []string{}
	if r.Interests != "" {
		if err := json.Unmarshal([]byte(r.Interests), &interests); err != nil {
			return nil, fmt.Errorf("decoding interests for %s: %w", r.UserID, err)
		}
	}

	emb, err := storage.DecodeEmbedding(r.Embedding)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for %s: %w", r.UserID, err)
	}

	return &social.UserProfile{
		UserID:               r.UserID,
		Description:          r.Description,
		Interests:            interests,
		Groups:               []social.Group{},
		DescriptionEmbedding: emb,
		DescriptionUpdatedAt: fromUnixNano(r.UpdatedAt),
	}, nil
}

func (r groupRow) toGroup() social.Group {
	return social.Group{
		ID:          r.ID,
		Name:        r.Name,
		Type:        social.GroupType(r.Type),
		Description: r.Description,
	}
}

func (r interactionRow) toInteraction() (*social.Interaction, error) {
	messages := []social.Turn{}
	if r.Messages != "" {
		if err := json.Unmarshal([]byte(r.Messages), &messages); err != nil {
			return nil, fmt.Errorf("decoding messages for %s: %w", r.ID, err)
		}
	}

	emb, err := storage.DecodeEmbedding(r.Embedding)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
	}

	return &social.Interaction{
		ID:           r.ID,
		UserID:       r.UserID,
		OtherUserID:  r.OtherUserID,
		GroupID:      r.GroupID,
		Messages:     messages,
		Summary:      r.Summary,
		Embedding:    emb,
		DerivedTurns: r.DerivedTurns,
		Timestamp:    fromUnixNano(r.UpdatedAt),
	}, nil
}

func toInteractions(rows []interactionRow) ([]*social.Interaction, error) {
	out := make([]*social.Interaction, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toInteraction()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func isClassified(err error) bool {
	return errors.Is(err, social.ErrValidation) ||
		errors.Is(err, social.ErrNotFound) ||
		errors.Is(err, social.ErrStorageUnavailable) ||
		errors.Is(err, social.ErrDerivationFailed)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
