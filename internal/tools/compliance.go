package tools

import (
	"fmt"
	"strings"
)

// Customer actions checked for compliance.
const (
	ComplianceSupportQuery = "support_query"
	ComplianceDispute      = "dispute_transaction"
	ComplianceCloseAccount = "close_account"
	ComplianceTransfer     = "transfer_funds"
)

// complianceRule is the policy for one action.
type complianceRule struct {
	required []string
	// countField holds how often the action was taken this month.
	countField  string
	maxPerMonth int
	amountField string
	maxAmount   float64
	// humanApproval marks actions a person must always approve.
	humanApproval bool
}

var complianceRules = map[string]complianceRule{
	ComplianceSupportQuery: {required: []string{"customer_id"}},
	ComplianceDispute: {
		required:    []string{"transaction_id", "reason", "account_id"},
		countField:  "dispute_count_this_month",
		maxPerMonth: 5,
	},
	ComplianceCloseAccount: {
		required:      []string{"account_id", "reason"},
		humanApproval: true,
	},
	ComplianceTransfer: {
		required:    []string{"from_account", "to_account", "amount"},
		maxAmount:   10000,
		amountField: "amount",
	},
}

// regulations lists the regulations governing an operation, by jurisdiction.
var regulations = map[string]map[string][]string{
	"US": {
		ComplianceDispute: {"Regulation E", "FCRA"},
		"fraud_detection": {"BSA", "AML"},
		"data_access":     {"GLBA", "CCPA"},
	},
	"EU": {
		ComplianceDispute: {"PSD2"},
		"fraud_detection": {"GDPR", "AML"},
		"data_access":     {"GDPR"},
	},
}

// ComplianceCheck is the outcome of validating an action.
type ComplianceCheck struct {
	Action         string   `json:"action"`
	Compliant      bool     `json:"compliant"`
	Violations     []string `json:"violations"`
	RequiresReview bool     `json:"requires_human_review"`
	Regulations    []string `json:"regulations"`
}

// DetectAction infers the customer action a request asks for.
func DetectAction(query string) string {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "dispute"):
		return ComplianceDispute
	case strings.Contains(q, "close") && strings.Contains(q, "account"):
		return ComplianceCloseAccount
	case strings.Contains(q, "transfer"):
		return ComplianceTransfer
	default:
		return ComplianceSupportQuery
	}
}

// ValidateCompliance checks action against its policy using facts about
// the customer and request. Unknown actions are never compliant. A
// non-compliant action, or one that always needs approval, requires human
// review.
func ValidateCompliance(action string, facts map[string]any, jurisdiction string) ComplianceCheck {
	check := ComplianceCheck{
		Action:      action,
		Violations:  []string{},
		Regulations: Regulations(action, jurisdiction),
	}

	rule, ok := complianceRules[action]
	if !ok {
		check.Violations = append(check.Violations, "action not recognized")
		check.RequiresReview = true
		return check
	}

	for _, field := range rule.required {
		if v, present := facts[field]; !present || v == "" {
			check.Violations = append(check.Violations, "missing required field: "+field)
		}
	}
	if rule.countField != "" && number(facts[rule.countField]) >= float64(rule.maxPerMonth) {
		check.Violations = append(check.Violations, fmt.Sprintf("monthly limit of %d exceeded", rule.maxPerMonth))
	}
	if rule.amountField != "" && number(facts[rule.amountField]) > rule.maxAmount {
		check.Violations = append(check.Violations, fmt.Sprintf("transfer amount exceeds maximum of $%.0f", rule.maxAmount))
	}

	check.Compliant = len(check.Violations) == 0
	check.RequiresReview = rule.humanApproval || !check.Compliant
	return check
}

// Regulations returns the regulations that apply to operation in
// jurisdiction. The result is empty, not nil, when none apply.
func Regulations(operation, jurisdiction string) []string {
	regs := regulations[strings.ToUpper(jurisdiction)][operation]
	return append([]string{}, regs...)
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}
