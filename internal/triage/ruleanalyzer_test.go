package triage_test

import (
	"context"
	"testing"

	"github.com/aegis-secops/aegis/internal/triage"
)

var ctx = context.Background()

func TestAnalyze_cleanReport(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "Port Scan", map[string]string{"ip": "203.0.113.4"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Score != 0 || report.Severity != "none" || report.Escalate {
		t.Errorf("clean report: %+v", report)
	}
	if report.Findings == nil {
		t.Error("Findings must be non-nil even when empty")
	}
}

func TestAnalyze_payloadPattern(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "SQL Injection", map[string]string{
		"pattern": "' UNION SELECT password FROM users --",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 || report.Findings[0].Rule != "payload_pattern" {
		t.Fatalf("findings: %+v", report.Findings)
	}
	if report.Score != 20 || report.Severity != "low" {
		t.Errorf("score: %d severity: %q", report.Score, report.Severity)
	}
	if report.ScoreBoost != 1.0 {
		t.Errorf("score boost: got %v, want 1.0", report.ScoreBoost)
	}
}

func TestAnalyze_internalSource(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "Brute Force", map[string]string{"ip": "10.20.30.40"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 || report.Findings[0].Rule != "internal_source" {
		t.Errorf("findings: %+v", report.Findings)
	}
}

func TestAnalyze_invalidSourceAddress(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "Brute Force", map[string]string{"ip": "not-an-ip"})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 1 || report.Findings[0].Rule != "source_address" {
		t.Errorf("findings: %+v", report.Findings)
	}
}

func TestAnalyze_senderSpoofing(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "Phishing", map[string]string{
		"sender": "IT-Support <helpdesk@evil.example>",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Single finding even when multiple keywords match.
	if len(report.Findings) != 1 || report.Findings[0].Rule != "sender_spoofing" {
		t.Errorf("findings: %+v", report.Findings)
	}
}

func TestAnalyze_escalatesStackedIndicators(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "Ransomware", map[string]string{
		"ip":      "192.168.1.50",
		"pattern": "powershell -enc base64_decode(cmd.exe)",
		"sender":  "payroll@corp.example",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Escalate {
		t.Errorf("stacked indicators should escalate: %+v", report)
	}
	if report.Severity != "critical" {
		t.Errorf("severity: got %q, want critical", report.Severity)
	}
}

func TestAnalyze_scoreCapped(t *testing.T) {
	a := triage.NewRuleBasedAnalyzer()

	report, err := a.Analyze(ctx, "Zero-Day Privilege Escalation Backdoor", map[string]string{
		"ip":      "127.0.0.1",
		"pattern": "union select or 1=1 exec( xp_cmdshell <script ../.. etc/passwd",
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Score != 100 {
		t.Errorf("score should cap at 100, got %d", report.Score)
	}
	if report.ScoreBoost != 5.0 {
		t.Errorf("max score boost: got %v, want 5.0", report.ScoreBoost)
	}
}
