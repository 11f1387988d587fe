package entity

import (
	"time"
)

// Block action constants
const (
	BlockActionBlock     = "block"
	BlockActionUnblock   = "unblock"
	BlockActionWhitelist = "whitelist"
)

// BlockAction is one entry in the append-only audit log of firewall
// blacklist operations performed through the WAF integration.
type BlockAction struct {
	ID        string    `json:"id" ch:"id"`
	IP        string    `json:"ip" ch:"ip"`
	Action    string    `json:"action" ch:"action"`
	RuleID    string    `json:"rule_id,omitempty" ch:"rule_id"`
	Operator  string    `json:"operator" ch:"operator"`
	Reason    string    `json:"reason,omitempty" ch:"reason"`
	CreatedAt time.Time `json:"created_at" ch:"created_at"`
}

// ValidBlockAction reports whether the action is a known audit action
func ValidBlockAction(action string) bool {
	switch action {
	case BlockActionBlock, BlockActionUnblock, BlockActionWhitelist:
		return true
	}
	return false
}
