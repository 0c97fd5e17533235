package model

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ ResumeMarkersModel = (*customResumeMarkersModel)(nil)

const resumeMarkersColumns = "id, selector, from_cursor, to_cursor, oldest_ms, newest_ms"

// ResumeMarkers is a row of public.resume_markers.
type ResumeMarkers struct {
	Id         string `db:"id"`
	Selector   string `db:"selector"`
	FromCursor int64  `db:"from_cursor"`
	ToCursor   int64  `db:"to_cursor"`
	OldestMs   int64  `db:"oldest_ms"`
	NewestMs   int64  `db:"newest_ms"`
}

type (
	ResumeMarkersModel interface {
		Upsert(ctx context.Context, row *ResumeMarkers) error
		FindOne(ctx context.Context, id string) (*ResumeMarkers, error)
		Find(ctx context.Context, f Filter) ([]ResumeMarkers, error)
	}

	customResumeMarkersModel struct {
		conn  sqlx.SqlConn
		table string
	}
)

// NewResumeMarkersModel returns a model for the database table.
func NewResumeMarkersModel(conn sqlx.SqlConn) ResumeMarkersModel {
	return &customResumeMarkersModel{conn: conn, table: "public.resume_markers"}
}

// Upsert keeps from_cursor and oldest_ms from the first write and only
// moves the upper bounds forward.
func (m *customResumeMarkersModel) Upsert(ctx context.Context, row *ResumeMarkers) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (%[2]s)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    to_cursor = GREATEST(%[1]s.to_cursor, EXCLUDED.to_cursor),
    newest_ms = GREATEST(%[1]s.newest_ms, EXCLUDED.newest_ms)`, m.table, resumeMarkersColumns)
	if _, err := m.conn.ExecCtx(ctx, query,
		row.Id, row.Selector, row.FromCursor, row.ToCursor, row.OldestMs, row.NewestMs,
	); err != nil {
		return fmt.Errorf("resume_markers.Upsert: %w", err)
	}
	return nil
}

func (m *customResumeMarkersModel) FindOne(ctx context.Context, id string) (*ResumeMarkers, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 LIMIT 1", resumeMarkersColumns, m.table)
	var row ResumeMarkers
	err := m.conn.QueryRowCtx(ctx, &row, query, id)
	switch err {
	case nil:
		return &row, nil
	case sqlx.ErrNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("resume_markers.FindOne: %w", err)
	}
}

func (m *customResumeMarkersModel) Find(ctx context.Context, f Filter) ([]ResumeMarkers, error) {
	query, args := buildFind(m.table, resumeMarkersColumns, "newest_ms", "", f)
	var rows []ResumeMarkers
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("resume_markers.Find: %w", err)
	}
	return rows, nil
}
