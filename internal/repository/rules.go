package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const ruleColumns = `id, tenant_id, name, description, version, entity_kind, expression, points, enabled`

// SaveRuleConfig upserts a rule under scope, keyed by id and version.
// GlobalTenant rules apply to every account.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, scope string, rule *domain.RuleConfig) error {
	if scope == "" {
		return fmt.Errorf("%w: rule scope is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO rule_configs (` + ruleColumns + `, created_at, updated_at)
		VALUES (` + placeholders(11) + `)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			entity_kind = excluded.entity_kind,
			expression = excluded.expression,
			points = excluded.points,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, scope, rule.Name, rule.Description, rule.Version,
		string(rule.EntityKind), rule.Expression, rule.Points, boolInt(rule.Enabled),
		now, now,
	); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}

	rule.TenantID = scope
	return nil
}

// ListRuleConfigs returns the enabled rules in scope, newest version of
// each id first.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, scope string) ([]*domain.RuleConfig, error) {
	if scope == "" {
		return nil, fmt.Errorf("%w: rule scope is required", ErrInvalidInput)
	}

	query := `SELECT ` + ruleColumns + ` FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id, updated_at DESC`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := []*domain.RuleConfig{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		if n := len(latest); n > 0 && latest[n-1].ID == rule.ID {
			continue
		}
		latest = append(latest, rule)
	}
	return latest, rows.Err()
}

func scanRule(row scanner) (*domain.RuleConfig, error) {
	var (
		rule        domain.RuleConfig
		description sql.NullString
		kind        string
		enabled     int
	)
	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description, &rule.Version,
		&kind, &rule.Expression, &rule.Points, &enabled,
	); err != nil {
		return nil, err
	}
	rule.Description = description.String
	rule.EntityKind = domain.EntityKind(kind)
	rule.Enabled = enabled == 1
	return &rule, nil
}
