package clickhouse

import (
	"context"
	"fmt"

	"github.com/haoyusec/threatlens/internal/entity"
)

// BlockAuditRepository persists the append-only log of firewall blacklist
// actions performed through the WAF integration.
type BlockAuditRepository struct {
	conn *Connection
}

// NewBlockAuditRepository creates a new block audit repository
func NewBlockAuditRepository(conn *Connection) *BlockAuditRepository {
	return &BlockAuditRepository{conn: conn}
}

// Record appends one block action to the log
func (r *BlockAuditRepository) Record(ctx context.Context, action *entity.BlockAction) error {
	query := `
		INSERT INTO block_action_log (id, ip, action, rule_id, operator, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if err := r.conn.Exec(ctx, query,
		action.ID,
		action.IP,
		action.Action,
		action.RuleID,
		action.Operator,
		action.Reason,
		action.CreatedAt,
	); err != nil {
		return fmt.Errorf("record block action: %w", err)
	}
	return nil
}

// List returns recent block actions, newest first
func (r *BlockAuditRepository) List(ctx context.Context, limit, offset int) ([]entity.BlockAction, error) {
	query := `
		SELECT id, ip, action, rule_id, operator, reason, created_at
		FROM block_action_log
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.conn.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list block actions: %w", err)
	}
	defer rows.Close()

	var actions []entity.BlockAction
	for rows.Next() {
		var action entity.BlockAction
		if err := rows.Scan(
			&action.ID,
			&action.IP,
			&action.Action,
			&action.RuleID,
			&action.Operator,
			&action.Reason,
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan block action: %w", err)
		}
		actions = append(actions, action)
	}

	return actions, nil
}

// ListByIP returns block actions for one IP, newest first
func (r *BlockAuditRepository) ListByIP(ctx context.Context, ip string, limit int) ([]entity.BlockAction, error) {
	query := `
		SELECT id, ip, action, rule_id, operator, reason, created_at
		FROM block_action_log
		WHERE ip = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.conn.Query(ctx, query, ip, limit)
	if err != nil {
		return nil, fmt.Errorf("list block actions by ip: %w", err)
	}
	defer rows.Close()

	var actions []entity.BlockAction
	for rows.Next() {
		var action entity.BlockAction
		if err := rows.Scan(
			&action.ID,
			&action.IP,
			&action.Action,
			&action.RuleID,
			&action.Operator,
			&action.Reason,
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan block action: %w", err)
		}
		actions = append(actions, action)
	}

	return actions, nil
}
