package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nsxzhou/flowlingo/internal/config"
	"github.com/nsxzhou/flowlingo/internal/engine"
	"github.com/nsxzhou/flowlingo/internal/logging"
	"github.com/nsxzhou/flowlingo/internal/types"
)

var (
	// Global flags
	verbose      bool
	dataDir      string
	corePath     string
	manifestPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "flowlingo",
	Short: "FlowLingo - in-context English learning engine for Chinese text",
	Long: `FlowLingo plans English replacement actions over Chinese page text:
dictionary matching, LLM-planned phrase replacements, adaptive intensity
from behavioral signals, and per-word mastery tracking.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.New(verbose)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// plan plans span actions for segments given on stdin or as a file.
var planCmd = &cobra.Command{
	Use:   "plan --domain example.com [segments.json]",
	Short: "Plan replacement actions for page segments",
	Long: `Reads a JSON array of segments ({"segmentId": "...", "text": "..."})
from the given file or stdin and prints the planned span actions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite --domain example.com [text]",
	Short: "Rewrite a Chinese sentence into level-matched English",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRewrite,
}

var explainCmd = &cobra.Command{
	Use:   "explain --en word --cn 词语",
	Short: "Explain a rendered English word in its Chinese context",
	RunE:  runExplain,
}

var testEndpointCmd = &cobra.Command{
	Use:   "test-endpoint --base-url URL --model MODEL",
	Short: "Probe an LLM endpoint's connectivity",
	RunE:  runTestEndpoint,
}

var importDictCmd = &cobra.Command{
	Use:   "import-dict --level 5000",
	Short: "Import extension dictionary packages up to a level",
	RunE:  runImportDict,
}

var matchCmd = &cobra.Command{
	Use:   "match [text]",
	Short: "Run the greedy dictionary matcher over text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMatch,
}

var policyCmd = &cobra.Command{
	Use:   "policy --domain example.com",
	Short: "Show the page policy for a domain",
	RunE:  runPolicy,
}

var siteCmd = &cobra.Command{
	Use:   "site --domain example.com --enabled=false",
	Short: "Set or show the per-domain site rule",
	RunE:  runSite,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learning stats, optionally recording applied replacements",
	RunE:  runStats,
}

var eventCmd = &cobra.Command{
	Use:   "event --type hover --domain example.com",
	Short: "Report a behavioral event",
	RunE:  runEvent,
}

var settingsCmd = &cobra.Command{
	Use:   "settings [settings.yaml]",
	Short: "Show stored settings, or apply a YAML settings file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettings,
}

var (
	flagDomain    string
	flagEn        string
	flagCn        string
	flagContext   string
	flagWordID    string
	flagBaseURL   string
	flagAPIKey    string
	flagModel     string
	flagTimeoutMs int
	flagLevel     int
	flagEnabled   bool
	flagAdd       int64
	flagEventType string
	flagTargetID  string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Data directory (default: ~/.flowlingo)")
	rootCmd.PersistentFlags().StringVar(&corePath, "core-dict", "", "Core dictionary JSONL path (default: <data>/dictionary/core_3000.jsonl)")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "Package manifest path (default: <data>/dictionary/packages.json)")

	planCmd.Flags().StringVar(&flagDomain, "domain", "", "Page domain (required)")
	rewriteCmd.Flags().StringVar(&flagDomain, "domain", "", "Page domain")
	policyCmd.Flags().StringVar(&flagDomain, "domain", "", "Page domain (required)")
	siteCmd.Flags().StringVar(&flagDomain, "domain", "", "Page domain (required)")
	siteCmd.Flags().BoolVar(&flagEnabled, "enabled", true, "Whether the engine runs on this domain")

	explainCmd.Flags().StringVar(&flagDomain, "domain", "", "Page domain")
	explainCmd.Flags().StringVar(&flagEn, "en", "", "Rendered English word (required)")
	explainCmd.Flags().StringVar(&flagCn, "cn", "", "Original Chinese fragment (required)")
	explainCmd.Flags().StringVar(&flagContext, "context", "", "Surrounding text")
	explainCmd.Flags().StringVar(&flagWordID, "word-id", "", "Word identity")

	testEndpointCmd.Flags().StringVar(&flagBaseURL, "base-url", "", "Endpoint base URL (required)")
	testEndpointCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key")
	testEndpointCmd.Flags().StringVar(&flagModel, "model", "", "Model name (required)")
	testEndpointCmd.Flags().IntVar(&flagTimeoutMs, "timeout-ms", 5000, "Probe timeout in milliseconds")

	importDictCmd.Flags().IntVar(&flagLevel, "level", 3000, "Target dictionary level (3000, 5000 or 10000)")
	matchCmd.Flags().IntVar(&flagLevel, "level", 3000, "Dictionary level")

	statsCmd.Flags().Int64Var(&flagAdd, "add", 0, "Record this many applied replacements before reading")

	eventCmd.Flags().StringVar(&flagEventType, "type", "", "Event type (hover|pronounce|known|unknown|restore|pause|resume)")
	eventCmd.Flags().StringVar(&flagDomain, "domain", "", "Page domain (required)")
	eventCmd.Flags().StringVar(&flagTargetID, "target", "", "Target word id")
	eventCmd.Flags().StringVar(&flagEn, "en", "", "Word English side")
	eventCmd.Flags().StringVar(&flagCn, "cn", "", "Word Chinese side")

	rootCmd.AddCommand(planCmd, rewriteCmd, explainCmd, testEndpointCmd,
		importDictCmd, matchCmd, policyCmd, siteCmd, statsCmd, eventCmd, settingsCmd)
}

func openEngine() (*engine.Engine, error) {
	dir := dataDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".flowlingo")
	}
	core := corePath
	if core == "" {
		core = filepath.Join(dir, "dictionary", "core_3000.jsonl")
	}
	manifest := manifestPath
	if manifest == "" {
		manifest = filepath.Join(dir, "dictionary", "packages.json")
	}
	return engine.New(engine.Options{
		DBPath:       filepath.Join(dir, "flowlingo.db"),
		CorePath:     core,
		ManifestPath: manifest,
		Logger:       logger,
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	if flagDomain == "" {
		return fmt.Errorf("--domain is required")
	}

	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = readAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read segments: %w", err)
	}

	var segments []types.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return fmt.Errorf("failed to parse segments: %w", err)
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	actions, err := eng.PlanTransforms(ctx, flagDomain, segments)
	if err != nil {
		return err
	}
	return printJSON(actions)
}

func runRewrite(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out, err := eng.RewriteSentence(ctx, flagDomain, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runExplain(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out, err := eng.ExplainWord(ctx, engine.ExplainRequest{
		Domain:  flagDomain,
		WordID:  flagWordID,
		En:      flagEn,
		Cn:      flagCn,
		Context: flagContext,
	})
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runTestEndpoint(cmd *cobra.Command, args []string) error {
	if flagBaseURL == "" {
		return fmt.Errorf("--base-url is required")
	}
	if flagModel == "" {
		return fmt.Errorf("--model is required")
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, cancel := signalContext()
	defer cancel()

	out, err := eng.TestEndpoint(ctx, flagBaseURL, flagAPIKey, flagModel, flagTimeoutMs)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runImportDict(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	start := time.Now()
	tier, err := eng.EnsureDictionary(flagLevel)
	if err != nil {
		return err
	}
	fmt.Printf("level %d ready: %d entries (%s)\n", tier.Level, len(tier.Entries), time.Since(start).Round(time.Millisecond))
	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	candidates, err := eng.MatchCandidates(strings.Join(args, " "), flagLevel)
	if err != nil {
		return err
	}
	return printJSON(candidates)
}

func runPolicy(cmd *cobra.Command, args []string) error {
	if flagDomain == "" {
		return fmt.Errorf("--domain is required")
	}
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := eng.PagePolicy(flagDomain)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func runSite(cmd *cobra.Command, args []string) error {
	if flagDomain == "" {
		return fmt.Errorf("--domain is required")
	}
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if cmd.Flags().Changed("enabled") {
		if err := eng.SetSiteRule(flagDomain, flagEnabled); err != nil {
			return err
		}
	}
	rule, overridden, err := eng.SiteRule(flagDomain)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"domain":     rule.Domain,
		"enabled":    rule.Enabled,
		"overridden": overridden,
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	var stats types.LearningStats
	if flagAdd > 0 {
		stats, err = eng.AddTranslations(flagAdd)
	} else {
		stats, err = eng.LearningStats()
	}
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runEvent(cmd *cobra.Command, args []string) error {
	if flagEventType == "" || flagDomain == "" {
		return fmt.Errorf("--type and --domain are required")
	}
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	event := types.Event{
		Type:     types.EventType(flagEventType),
		Domain:   flagDomain,
		TargetID: flagTargetID,
		Meta:     types.EventMeta{En: flagEn, Cn: flagCn},
	}
	if err := eng.ReportEvent(event); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if len(args) == 1 {
		s, err := config.Load(args[0])
		if err != nil {
			return err
		}
		stored, err := eng.UpdateSettings(s)
		if err != nil {
			return err
		}
		return printJSON(stored)
	}

	s, err := eng.Settings()
	if err != nil {
		return err
	}
	return printJSON(s)
}

func readAll(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err == nil && (info.Mode()&os.ModeCharDevice) != 0 {
		return nil, fmt.Errorf("no segments file given and stdin is a terminal")
	}
	return io.ReadAll(f)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
