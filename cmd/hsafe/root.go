package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/hsafe/internal/analysis"
	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/storage"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

const version = "1.0.0"

var (
	cfgFile string
	cfg     *util.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "hsafe",
	Short: "Firewall policy and topology simulator",
	Long: `H-Safe models a network topology with a single firewall, evaluates
ordered ALLOW/DENY/ALERT rules against traffic, and shows:
- the hop-by-hop path a packet takes and where it is dropped
- a time-compressed replay of classified capture traffic
- rule-order problems such as shadowed or overlapping rules

Captures are parsed by the analysis service (service_url).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.hsafe/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("service-url", "",
		"analysis service base URL")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("service_url", rootCmd.PersistentFlags().Lookup("service-url"))

	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)

	// Add shell completion
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	var err error
	cfg, err = util.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel, logPath(cfg))
}

func logPath(c *util.Config) string {
	if c.LogFile == "" {
		return ""
	}
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, c.LogFile)
}

// session is the persisted state every command works on.
type session struct {
	db    *storage.DB
	kv    *storage.KVStorage
	rules *rules.Store
	topo  *topology.Model
}

func openSession() (*session, error) {
	db, err := storage.Initialize(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	kv := storage.NewKVStorage(db)
	s := &session{
		db:    db,
		kv:    kv,
		rules: rules.NewStore(kv),
		topo:  topology.NewModel(kv),
	}
	s.rules.Load()
	s.topo.Load()
	return s, nil
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		util.Warn("Failed to close database: %v", err)
	}
}

func newClient() *analysis.Client {
	return analysis.NewClientFromConfig(cfg)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hsafe version %s\n", version)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for hsafe.

To load completions:

Bash:
  $ source <(hsafe completion bash)

Zsh:
  $ source <(hsafe completion zsh)

Fish:
  $ hsafe completion fish | source

PowerShell:
  PS> hsafe completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}
