package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"allin1/orchestrator/internal/config"
	"allin1/orchestrator/internal/llm"
)

// planCmd 是 plan 子命令：只做规划，不收集参数也不执行。
var planCmd = &cobra.Command{
	Use:   "plan <query>",
	Short: "把自然语言请求规划成任务图并打印",
	Long: `调用规划模型生成任务图，以 JSON 形式输出到标准输出。
占位符原样保留，便于检查规划质量。`,
	Example: `  orchestrator plan "帮我订一张去东京的机票"
  orchestrator plan --config config.yaml "book me a flight to Tokyo"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	model, err := llm.NewChatModel(ctx, cfg.LLM, cfg.LLM.Temperature)
	if err != nil {
		return fmt.Errorf("初始化规划模型失败: %w", err)
	}

	query := strings.Join(args, " ")
	g, err := llm.NewPlanner(model).GeneratePlan(ctx, query)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
