package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"diaryrag/internal/config"
	"diaryrag/internal/counsel"
	"diaryrag/internal/domain"
	"diaryrag/internal/history"
	"diaryrag/internal/logging"
	"diaryrag/internal/service"
	"diaryrag/internal/tui"
)

type rootOptions struct {
	cfgPath string
	userID  string
	profile domain.Profile
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "diaryrag",
		Short:        "Diary emotion scoring and counseling-grounded advice",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/diaryrag/config.yaml if not provided)")
	root.PersistentFlags().StringVar(&opts.userID, "user", "local", "User id attached to requests and logs")
	pf := root.PersistentFlags()
	pf.IntVar(&opts.profile.Age, "age", 0, "Profile: age")
	pf.StringVar(&opts.profile.Job, "job", "", "Profile: job")
	pf.StringVar(&opts.profile.IllnessHistory, "disease", "", "Profile: illness history")
	pf.StringVar(&opts.profile.Gender, "gender", "", "Profile: gender")
	pf.StringVar(&opts.profile.LivingSituation, "family", "", "Profile: living situation")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Interactive diary console",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTUI(cmd.Context(), opts)
			},
		},
		newScoreCmd(opts),
		newAdviseCmd(opts),
		newIngestCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

// profileOrNil returns nil unless at least one profile flag was given.
func (o *rootOptions) profileOrNil() *domain.Profile {
	if o.profile == (domain.Profile{}) {
		return nil
	}
	p := o.profile
	return &p
}

func loadConfig(path string) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if path == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts.cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return assemble(ctx, cfg, log)
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts.cfgPath)
	if err != nil {
		return err
	}
	log := zap.NewNop()
	if cfg.Log.File != "" {
		if log, err = logging.New(cfg.Log); err != nil {
			return err
		}
	}
	a, err := assemble(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { _ = log.Sync() }()

	m := tui.New(a.svc, opts.userID, opts.profileOrNil(), 0)
	_, err = tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}

func newScoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score [text...]",
		Short: "Score and summarize diary entries (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if len(texts) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				texts = []string{string(data)}
			}
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() { _ = a.log.Sync() }()

			res, err := a.svc.DiarySummary(cmd.Context(), service.DiaryRequest{
				UserID:  opts.userID,
				Texts:   texts,
				Profile: opts.profileOrNil(),
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newAdviseCmd(opts *rootOptions) *cobra.Command {
	var (
		role, reportFile, summary string
		week                      bool
	)
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Generate advice for a weekly report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !domain.Role(role).Valid() {
				return fmt.Errorf("unknown role %q (manager, individual, daily)", role)
			}
			var report []byte
			var err error
			switch {
			case reportFile == "" && week:
			case reportFile == "" || reportFile == "-":
				report, err = io.ReadAll(cmd.InOrStdin())
			default:
				report, err = os.ReadFile(reportFile)
			}
			if err != nil {
				return err
			}
			a, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()
			defer func() { _ = a.log.Sync() }()

			if week {
				if a.journal == nil {
					return errors.New("--week needs the diary journal (history.path)")
				}
				entries, err := a.journal.Since(cmd.Context(), opts.userID, time.Now().AddDate(0, 0, -7))
				if err != nil {
					return err
				}
				weekly, total := history.WeeklyReport(entries)
				if strings.TrimSpace(string(report)) == "" {
					report = []byte(weekly)
				}
				if summary == "" {
					summary = total
				}
			}
			if strings.TrimSpace(string(report)) == "" && strings.TrimSpace(summary) == "" {
				return errors.New("report or --summary is required")
			}

			res, err := a.svc.Advice(cmd.Context(), service.AdviceRequest{
				UserID:  opts.userID,
				Role:    domain.Role(role),
				Report:  strings.TrimSpace(string(report)),
				Summary: summary,
				Profile: opts.profile,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.RoleIndividual), "Advice role: manager, individual or daily")
	cmd.Flags().StringVar(&reportFile, "report", "", "Report file (default stdin)")
	cmd.Flags().StringVar(&summary, "summary", "", "Total summary used as the retrieval query")
	cmd.Flags().BoolVar(&week, "week", false, "Build the report and summary from the last 7 days of the journal")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var singlePath, multiPath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed counseling corpora into the vector store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.cfgPath)
			if err != nil {
				return err
			}
			if singlePath == "" {
				singlePath = cfg.Ingest.SinglePath
			}
			if multiPath == "" {
				multiPath = cfg.Ingest.MultiPath
			}
			if singlePath == "" && multiPath == "" {
				return errors.New("no corpus given: set --single/--multi or ingest paths in config")
			}
			var single []counsel.SingleTurn
			var multi []counsel.Dialogue
			if singlePath != "" {
				if single, err = counsel.LoadSingleFile(singlePath); err != nil {
					return err
				}
			}
			if multiPath != "" {
				if multi, err = counsel.LoadMultiFile(multiPath); err != nil {
					return err
				}
			}
			records := counsel.Records(single, multi)

			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			a, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			n, ingestErr := counsel.NewIngester(a.embedder, a.store, cfg.Ingest.Concurrency, log).Ingest(cmd.Context(), records)
			// Close writes memory snapshots, including after a partial ingest.
			closeErr := a.Close()
			log.Info("ingest finished", zap.Int("written", n), zap.Int("records", len(records)))
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d/%d records\n", n, len(records))
			return errors.Join(ingestErr, closeErr)
		},
	}
	cmd.Flags().StringVar(&singlePath, "single", "", "Single-turn corpus (JSON array)")
	cmd.Flags().StringVar(&multiPath, "multi", "", "Multi-turn corpus (JSON array of dialogues)")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent journal entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.cfgPath)
			if err != nil {
				return err
			}
			j, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if j == nil {
				return errors.New("diary journal is disabled")
			}
			defer j.Close()
			entries, err := j.Recent(cmd.Context(), opts.userID, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum entries to list")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
