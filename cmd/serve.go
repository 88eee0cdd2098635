package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"allin1/orchestrator/api/rest"
	"allin1/orchestrator/internal/backend"
	"allin1/orchestrator/internal/config"
	"allin1/orchestrator/internal/engine"
	"allin1/orchestrator/internal/llm"
	"allin1/orchestrator/internal/metrics"
	"allin1/orchestrator/internal/session"
	"allin1/orchestrator/internal/store"
	"allin1/orchestrator/pkg/logger"
)

var serveAddress string

// serveCmd 是 serve 子命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动编排服务",
	Long: `启动编排服务，提供 REST API 和 WebSocket 会话通道。

服务负责：
  - 把自然语言请求规划成任务图
  - 通过会话通道向用户补齐缺失参数
  - 按顺序调用动作后端并处理授权挑战`,
	Example: `  # 使用默认配置启动
  orchestrator serve

  # 指定监听地址
  orchestrator serve --address :9090

  # 使用配置文件
  orchestrator serve --config config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "HTTP 服务地址（覆盖配置文件）")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	logger.SetLevelFromString(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	router, err := backend.NewRouter(cfg.Backends, backend.NewAuthRegistry())
	if err != nil {
		return err
	}

	planModel, err := llm.NewChatModel(ctx, cfg.LLM, cfg.LLM.Temperature)
	if err != nil {
		return fmt.Errorf("初始化规划模型失败: %w", err)
	}
	questionModel, err := llm.NewChatModel(ctx, cfg.LLM, cfg.LLM.QuestionTemperature)
	if err != nil {
		return fmt.Errorf("初始化问题模型失败: %w", err)
	}

	recorder := metrics.NewRecorder()
	eng := engine.New(st, router, recorder)
	orch := session.New(llm.NewPlanner(planModel), llm.NewQuestionGenerator(questionModel), eng, st)

	server := rest.NewServer(orch, router, recorder, &rest.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		EnableCORS:   cfg.Server.EnableCORS,
	})

	// 优雅退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("serve: received signal %s, shutting down", sig)
		cancel()
	}()

	logger.Info("serve: listening on %s", cfg.Server.Address)
	return server.StartWithContext(ctx)
}

// openStore picks the persistence layer from configuration: SQLite when
// a path is set, in-memory otherwise.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Path == "" {
		logger.Warn("serve: no store path configured, task graphs are not durable")
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(cfg.Store.Path)
}
