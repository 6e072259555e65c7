package policy

// AssessRisk derives an effective risk level for one call. Calls carrying an
// HTTP method are graded by the method's blast radius; everything else keeps
// the tool's default. Used for suspension payload enrichment, not for
// classification.
func AssessRisk(tp ToolPolicy, call Call) RiskLevel {
	switch call.Method {
	case "":
		return tp.DefaultRisk
	case "GET", "HEAD", "OPTIONS":
		return RiskSafe
	case "POST", "PUT", "PATCH":
		return RiskDangerous
	case "DELETE":
		return RiskCritical
	default:
		return tp.DefaultRisk
	}
}

// Reversible reports whether the operation can be undone easily. Deletes and
// creates against an external API are not; reads and idempotent updates are.
func Reversible(tp ToolPolicy, call Call) bool {
	switch call.Method {
	case "POST", "DELETE":
		return false
	case "":
		return AssessRisk(tp, call).Rank() < RiskCritical.Rank()
	default:
		return true
	}
}
