package plan

import "strings"

// Recommendations maps a threat type to mitigation advice. Lookup falls
// back to a case-insensitive substring match so e.g. "Blind SQL Injection"
// still finds the SQL Injection entry.
type Recommendations map[string][]string

// DefaultRecommendations returns the built-in advice table.
func DefaultRecommendations() Recommendations {
	return Recommendations{
		"SQL Injection": {
			"Use parameterized queries",
			"Sanitize all user inputs",
			"Deploy a Web Application Firewall (WAF)",
		},
		"Phishing": {
			"Enforce 2FA for all users",
			"Train employees on phishing awareness",
			"Use advanced email filtering",
		},
		"DDoS": {
			"Enable rate limiting",
			"Use DDoS protection services (e.g. Cloudflare, AWS Shield)",
			"Deploy traffic monitoring and anomaly detection tools",
		},
		"Malware": {
			"Update antivirus definitions regularly",
			"Restrict admin privileges",
			"Conduct regular system scans",
		},
	}
}

// Lookup returns the advice for threatType: first an exact match, then a
// substring match in either direction, then generic advice.
func (r Recommendations) Lookup(threatType string) []string {
	if recs, ok := r[threatType]; ok {
		return recs
	}
	lower := strings.ToLower(threatType)
	for key, recs := range r {
		k := strings.ToLower(key)
		if strings.Contains(lower, k) || strings.Contains(k, lower) {
			return recs
		}
	}
	return []string{"No recommendations available for this threat."}
}

// ResponsePlans maps a threat type to ordered incident response steps.
// Lookup is exact-match only.
type ResponsePlans map[string][]string

// DefaultResponsePlans returns the built-in response plan table.
func DefaultResponsePlans() ResponsePlans {
	return ResponsePlans{
		"SQL Injection": {
			"Block the offending IP address",
			"Patch the vulnerable endpoint",
			"Conduct forensic review of logs",
			"Notify web application devs",
		},
		"Phishing": {
			"Alert affected users",
			"Force password reset for compromised accounts",
			"Update phishing email filters",
			"Review email server logs",
		},
		"DDoS": {
			"Enable rate limiting on targeted services",
			"Activate DDoS protection services",
			"Monitor traffic anomalies",
			"Contact ISP or cloud provider if needed",
		},
	}
}

// Lookup returns the response plan for threatType, or a placeholder when
// no plan exists.
func (p ResponsePlans) Lookup(threatType string) []string {
	if steps, ok := p[threatType]; ok {
		return steps
	}
	return []string{"No response plan available for this threat type."}
}
