package triage

import (
	"context"
	"net"
	"strings"
)

// ruleFunc inspects a threat report and returns zero or more Findings if
// its rule matches.
type ruleFunc func(threatType string, details map[string]string) []Finding

// RuleBasedAnalyzer is the default Analyzer implementation. It runs a
// fixed set of pattern-matching rules against the threat report and
// accumulates a score.
type RuleBasedAnalyzer struct {
	rules []ruleFunc
}

// NewRuleBasedAnalyzer returns a RuleBasedAnalyzer loaded with the
// default rule set.
func NewRuleBasedAnalyzer() *RuleBasedAnalyzer {
	a := &RuleBasedAnalyzer{}
	a.rules = []ruleFunc{
		rulePayloadPatterns,
		ruleSenderSpoofing,
		ruleInternalSource,
		ruleTypeKeywords,
	}
	return a
}

// Analyze implements Analyzer.
func (a *RuleBasedAnalyzer) Analyze(_ context.Context, threatType string, details map[string]string) (*Report, error) {
	var findings []Finding
	for _, r := range a.rules {
		findings = append(findings, r(threatType, details)...)
	}

	total := 0
	for _, f := range findings {
		total += int(f.Confidence * 25)
	}
	if total > 100 {
		total = 100
	}

	if findings == nil {
		findings = []Finding{}
	}

	return &Report{
		Score:      total,
		Severity:   severityLabel(total),
		Findings:   findings,
		ScoreBoost: float64(total) / 20,
		Escalate:   total >= 85,
	}, nil
}

// ── Rules ─────────────────────────────────────────────────────────────────────

// injectionPayloadPatterns are substrings in an attack pattern detail
// that indicate an active exploitation attempt rather than a scan.
var injectionPayloadPatterns = []string{
	"union select", "or 1=1", "exec(", "xp_cmdshell", "<script",
	"javascript:", "onerror=", "../..", "etc/passwd", "cmd.exe",
	"powershell", "base64_decode",
}

func rulePayloadPatterns(_ string, details map[string]string) []Finding {
	pattern := strings.ToLower(details["pattern"])
	if pattern == "" {
		return nil
	}
	var findings []Finding
	for _, p := range injectionPayloadPatterns {
		if strings.Contains(pattern, p) {
			findings = append(findings, Finding{
				Rule:        "payload_pattern",
				Description: "Attack pattern contains exploitation payload: " + p,
				Confidence:  0.8,
			})
		}
	}
	return findings
}

// spoofedSenderKeywords are display-name terms used to impersonate
// trusted internal senders in phishing mail.
var spoofedSenderKeywords = []string{
	"it-support", "helpdesk", "security-team", "payroll", "ceo",
	"no-reply", "account-verify", "password-reset",
}

func ruleSenderSpoofing(_ string, details map[string]string) []Finding {
	sender := strings.ToLower(details["sender"])
	if sender == "" {
		return nil
	}
	var findings []Finding
	for _, kw := range spoofedSenderKeywords {
		if strings.Contains(sender, kw) {
			findings = append(findings, Finding{
				Rule:        "sender_spoofing",
				Description: "Sender impersonates a trusted identity: " + kw,
				Confidence:  0.6,
			})
			break
		}
	}
	return findings
}

// ruleInternalSource flags attacks originating from private address
// space, which suggests a compromised internal host.
func ruleInternalSource(_ string, details map[string]string) []Finding {
	raw := details["ip"]
	if raw == "" {
		return nil
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return []Finding{{
			Rule:        "source_address",
			Description: "Source IP is not a valid address",
			Confidence:  0.3,
		}}
	}
	if ip.IsPrivate() || ip.IsLoopback() {
		return []Finding{{
			Rule:        "internal_source",
			Description: "Attack originates from internal address space",
			Confidence:  0.7,
		}}
	}
	return nil
}

// highImpactTypeKeywords are threat-type terms that warrant elevated
// handling even at a modest reported score.
var highImpactTypeKeywords = []string{
	"ransomware", "exfiltrat", "backdoor", "rootkit", "supply chain",
	"zero-day", "zero day", "privilege escalation",
}

func ruleTypeKeywords(threatType string, _ map[string]string) []Finding {
	lower := strings.ToLower(threatType)
	var findings []Finding
	for _, kw := range highImpactTypeKeywords {
		if strings.Contains(lower, kw) {
			findings = append(findings, Finding{
				Rule:        "type_keyword",
				Description: "Threat type indicates high-impact attack class: " + kw,
				Confidence:  0.7,
			})
			break
		}
	}
	return findings
}
