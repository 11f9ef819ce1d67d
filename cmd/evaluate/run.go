package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/katakuxiko/sasgpt/internal/config"
	"github.com/katakuxiko/sasgpt/internal/conversation"
	"github.com/katakuxiko/sasgpt/internal/evaluate"
	"github.com/katakuxiko/sasgpt/internal/logging"
	"github.com/katakuxiko/sasgpt/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var (
		dataset    string
		fromLog    bool
		output     string
		judgeModel string
		rps        float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Score a dataset or the conversation log",
		Long: `Scores context_recall, factual_correctness, faithfulness and
semantic_similarity for every sample and writes a UTF-8 CSV with a BOM.
Samples from the conversation log have no reference, so only faithfulness
is scored for them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer logger.Sync()

			var samples []evaluate.Sample
			switch {
			case dataset != "":
				samples, err = evaluate.LoadDataset(dataset)
			case fromLog:
				samples, err = samplesFromLog(cmd, cfg)
			default:
				err = errors.New("either --dataset or --from-log is required")
			}
			if err != nil {
				return err
			}

			if judgeModel == "" {
				judgeModel = cfg.Evaluate.JudgeModel
			}
			if !cmd.Flags().Changed("rps") {
				rps = cfg.Evaluate.RequestsPerSecond
			}
			llm := service.NewLLMClient(cfg.LLM)
			ev := evaluate.NewEvaluator(llm.WithChatModel(judgeModel), llm, rps, logger)
			rows, runErr := ev.Run(cmd.Context(), samples)

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := evaluate.WriteCSV(f, rows); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			logger.Info("evaluation written", zap.String("file", output), zap.Int("rows", len(rows)))
			cmd.Printf("Scored %d/%d samples into %s\n", len(rows), len(samples), output)
			return runErr
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "JSON list of {user_input, retrieved_contexts, response, reference}")
	cmd.Flags().BoolVar(&fromLog, "from-log", false, "use the configured conversation log as the dataset")
	cmd.Flags().StringVarP(&output, "output", "o", "result.csv", "output CSV")
	cmd.Flags().StringVar(&judgeModel, "judge-model", "", "judge model (default evaluate.judge_model)")
	cmd.Flags().Float64Var(&rps, "rps", 1, "judge requests per second, 0 for unlimited")
	cmd.MarkFlagsMutuallyExclusive("dataset", "from-log")
	return cmd
}

func samplesFromLog(cmd *cobra.Command, cfg *config.Config) ([]evaluate.Sample, error) {
	log, err := conversation.Open(cmd.Context(), cfg.Conversation)
	if err != nil {
		return nil, err
	}
	defer log.Close()
	recs, err := log.Records(cmd.Context())
	if err != nil {
		return nil, err
	}
	return evaluate.FromConversationLog(recs), nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("CONFIG_PATH", path)
	}
	return config.Load()
}
