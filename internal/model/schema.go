package model

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the checkpoint tables when missing.
func EnsureSchema(ctx context.Context, conn sqlx.SqlConn) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecCtx(ctx, stmt); err != nil {
			return fmt.Errorf("model.EnsureSchema: %w", err)
		}
	}
	return nil
}
