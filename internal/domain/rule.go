package domain

// RuleConfig defines an operator-supplied scoring rule evaluated in
// addition to the built-in evaluators for one entity kind.
type RuleConfig struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	EntityKind  EntityKind `json:"entityKind"`

	// CEL expression to evaluate. A bool result adds Points when true;
	// an int or double result is added as points directly.
	Expression string `json:"expression"`

	Points int `json:"points"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleHit is a rule that contributed points to a score.
type RuleHit struct {
	RuleID string `json:"ruleId"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}
