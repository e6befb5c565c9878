package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aegis-secops/aegis/internal/api/handler"
	"github.com/aegis-secops/aegis/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aegisctl",
	Short: "Aegis mitigation engine CLI",
	Long: `aegisctl is the command-line interface for the Aegis threat
mitigation engine.

It submits threats for mitigation, inspects the mitigation history,
and reports action effectiveness against a running aegisd server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.aegis")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("AEGIS")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.aegis/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "aegisd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "bearer token for authenticated routes")

	rootCmd.AddCommand(mitigateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(effectivenessCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(blockedCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	return client.New(serverURL, authToken)
}

// ── mitigate ─────────────────────────────────────────────────────────────────

var (
	mitigateID      string
	mitigateScore   float64
	mitigateDetails []string
	mitigateFormat  string
)

var mitigateCmd = &cobra.Command{
	Use:   "mitigate <threat-type>",
	Short: "Run the mitigation pipeline for a threat",
	Long: `Mitigate submits a threat to aegisd, which classifies its severity,
plans the response and executes every planned action:

  aegisctl mitigate "DDoS" --score 22.5 --detail ip=203.0.113.9
  aegisctl mitigate "SQL Injection" --score 18 --detail ip=198.51.100.7 --detail pattern=union-select`,
	Args: cobra.ExactArgs(1),
	RunE: runMitigate,
}

func init() {
	mitigateCmd.Flags().StringVar(&mitigateID, "id", "", "Threat ID (generated when empty)")
	mitigateCmd.Flags().Float64Var(&mitigateScore, "score", 0, "Risk score of the threat")
	mitigateCmd.Flags().StringArrayVar(&mitigateDetails, "detail", nil, "Threat detail as key=value (repeatable)")
	mitigateCmd.Flags().StringVar(&mitigateFormat, "format", "text", "Output format: text or json")
}

func runMitigate(cmd *cobra.Command, args []string) error {
	details := make(map[string]string, len(mitigateDetails))
	for _, kv := range mitigateDetails {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --detail %q: expected key=value", kv)
		}
		details[key] = value
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	record, err := newClient().Mitigate(ctx, client.ThreatRequest{
		ID:        mitigateID,
		Type:      args[0],
		RiskScore: mitigateScore,
		Details:   details,
	})
	if err != nil {
		return err
	}

	if mitigateFormat == "json" {
		return printJSON(record)
	}

	fmt.Printf("Threat:   %s (%s)\n", record.ThreatType, record.ThreatID)
	fmt.Printf("Severity: %s (score %.2f)\n", record.Severity, record.RiskScore)
	fmt.Printf("Status:   %s\n\n", record.Status)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tSTATUS\tMESSAGE")
	for _, r := range record.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Action.Kind, r.Status, truncate(r.Message, 70))
	}
	return w.Flush()
}

// ── history ──────────────────────────────────────────────────────────────────

var (
	historyLimit    int
	historyType     string
	historySeverity string
	historyFormat   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past mitigation runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records")
	historyCmd.Flags().StringVar(&historyType, "type", "", "Filter by threat type")
	historyCmd.Flags().StringVar(&historySeverity, "severity", "", "Filter by severity (low, medium, high, critical)")
	historyCmd.Flags().StringVar(&historyFormat, "format", "text", "Output format: text or json")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	records, err := newClient().History(ctx, client.HistoryOptions{
		Limit:      historyLimit,
		ThreatType: historyType,
		Severity:   historySeverity,
	})
	if err != nil {
		return err
	}

	if historyFormat == "json" {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No mitigation records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTHREAT\tSEVERITY\tSCORE\tACTIONS\tSTATUS")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.ThreatType, r.Severity, r.RiskScore, len(r.Results), r.Status)
	}
	return w.Flush()
}

// ── effectiveness ────────────────────────────────────────────────────────────

var effectivenessFormat string

var effectivenessCmd = &cobra.Command{
	Use:   "effectiveness",
	Short: "Show per-action effectiveness derived from past runs",
	Args:  cobra.NoArgs,
	RunE:  runEffectiveness,
}

func init() {
	effectivenessCmd.Flags().StringVar(&effectivenessFormat, "format", "text", "Output format: text or json")
}

func runEffectiveness(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := newClient().Effectiveness(ctx)
	if err != nil {
		return err
	}

	if effectivenessFormat == "json" {
		return printJSON(stats)
	}

	kinds := make([]string, 0, len(stats))
	for kind := range stats {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tEFFECTIVENESS\tSAMPLES")
	for _, kind := range kinds {
		s := stats[kind]
		fmt.Fprintf(w, "%s\t%.0f%%\t%d\n", kind, s.Effectiveness*100, s.Count)
	}
	return w.Flush()
}

// ── score ────────────────────────────────────────────────────────────────────

var (
	scoreLikelihood float64
	scoreImpact     float64
	scoreLastSeen   string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a decayed risk score and its severity",
	Long: `Score computes likelihood x impact with time decay applied since the
threat was last observed:

  aegisctl score --likelihood 4 --impact 5 --last-seen 2026-07-31T00:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().Float64Var(&scoreLikelihood, "likelihood", 0, "Likelihood on a 1-5 scale")
	scoreCmd.Flags().Float64Var(&scoreImpact, "impact", 0, "Impact on a 1-5 scale")
	scoreCmd.Flags().StringVar(&scoreLastSeen, "last-seen", "", "Last observation time (RFC 3339, default now)")
}

func runScore(cmd *cobra.Command, args []string) error {
	lastSeen := time.Now()
	if scoreLastSeen != "" {
		parsed, err := time.Parse(time.RFC3339, scoreLastSeen)
		if err != nil {
			return fmt.Errorf("invalid --last-seen %q: %w", scoreLastSeen, err)
		}
		lastSeen = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := newClient().Score(ctx, scoreLikelihood, scoreImpact, lastSeen)
	if err != nil {
		return err
	}

	fmt.Printf("Risk score: %.2f\nSeverity:   %s\n", result.RiskScore, result.Severity)
	return nil
}

// ── blocked ──────────────────────────────────────────────────────────────────

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List IPs currently blocked by the defense guard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		ips, err := newClient().BlockedIPs(ctx)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			fmt.Println("No blocked IPs.")
			return nil
		}
		for _, ip := range ips {
			fmt.Println(ip)
		}
		return nil
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenSecret  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for authenticated routes",
	Long: `Token mints an HS256 bearer token signed with the server's auth
secret, for use with --token or the AEGIS_TOKEN environment variable:

  AEGIS_AUTH_TOKEN_SECRET=... aegisctl token --subject ci --ttl 24h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("auth.token_secret")
		}
		if secret == "" {
			return fmt.Errorf("no signing secret: pass --secret or set AEGIS_AUTH_TOKEN_SECRET")
		}

		token, err := handler.IssueToken(secret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "aegisctl", "Subject claim of the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Signing secret (default from auth.token_secret config)")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the aegisctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("aegisctl", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
