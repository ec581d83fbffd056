package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/lu-zhengda/mailpilot/internal/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// KeywordSearch returns messages whose subject or snippet contains any of
// terms (case-insensitive), newest first.
func (s *DB) KeywordSearch(ctx context.Context, accountID int64, terms []string, limit int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM email_messages m WHERE m.account_id = ?`
	args := []any{accountID}

	var conds []string
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		pattern := "%" + likeEscaper.Replace(term) + "%"
		conds = append(conds, `(LOWER(m.subject) LIKE ? ESCAPE '\' OR LOWER(m.snippet) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if len(conds) > 0 {
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	query += " ORDER BY m.date_sent DESC, m.id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	msgs, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	return msgs, nil
}

// FullTextSearch matches query against the FTS5 index, best match first.
// Each word is quoted so user input cannot break the
// MATCH syntax.
func (s *DB) FullTextSearch(ctx context.Context, accountID int64, query string, limit int) ([]domain.Message, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	msgs, err := s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM email_messages m
		JOIN messages_fts fts ON fts.rowid = m.id
		WHERE messages_fts MATCH ? AND m.account_id = ?
		ORDER BY rank
		LIMIT ?`, match, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return msgs, nil
}

func ftsQuery(q string) string {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' && r != '.'
	})
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, `"`+w+`"`)
	}
	return strings.Join(parts, " ")
}
