package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"txlens/internal/account"
	"txlens/internal/classifier"
	"txlens/internal/config"
	"txlens/internal/connection"
	"txlens/internal/decoder"
	"txlens/internal/errors"
	"txlens/internal/logging"
	"txlens/internal/metrics"
	"txlens/internal/output"
	"txlens/internal/resolver"
	"txlens/internal/retry"
	"txlens/internal/shutdown"
	"txlens/internal/source"
)

const shutdownTimeout = 30 * time.Second

// app 命令共用的组件
type app struct {
	cfg        *config.Config
	logger     *logrus.Logger
	errors     *errors.ErrorHandler
	gs         *shutdown.GracefulShutdown
	pool       *connection.ConnectionPool
	txs        *resolver.Resolver
	accounts   *account.Resolver
	classifier *classifier.Classifier
}

// newApp 加载配置并连接所有数据源，组件关闭函数注册到停机管理器
func newApp(cmd *cobra.Command) (*app, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("加载环境变量文件失败: %w", err)
		}
	}

	boot := logrus.New()
	cfg, err := config.LoadConfig(configFile, boot)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	eh := errors.NewErrorHandler(logger)
	eh.AddCallback(func(e *errors.LensError) {
		metrics.IncError(e.Type.String(), e.Component)
	})

	gs := shutdown.NewGracefulShutdown(cmd.Context(), shutdownTimeout, logger)
	gs.Start()
	ctx := gs.Context()

	a := &app{cfg: cfg, logger: logger, errors: eh, gs: gs}
	if err := a.connect(ctx); err != nil {
		_ = gs.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	retrier := retry.NewRetrier(a.cfg.Retry, a.logger)

	pool, err := connection.NewConnectionPool(ctx, a.cfg.Blockchain.Nodes, a.logger)
	if err != nil {
		return err
	}
	a.pool = pool
	a.gs.Register("connection-pool", shutdown.OrderCloseSources, func(context.Context) error {
		return pool.Close()
	})

	relay, err := source.NewRelayClient(ctx, a.cfg.Relay, retrier, a.logger)
	if err != nil {
		return err
	}
	a.gs.Register("relay-client", shutdown.OrderCloseSources, func(context.Context) error {
		relay.Close()
		return nil
	})

	subgraph := source.NewSubgraphClient(a.cfg.Relay, retrier, a.logger)
	explorer := source.NewExplorerClient(a.cfg.Explorer, retrier, a.logger)

	sources := resolver.Sources{
		Node:       source.NewNodeClient(pool, retrier, a.logger),
		Relay:      relay,
		Membership: subgraph,
		Stake:      subgraph,
		Delegation: subgraph,
		Bundles:    source.NewBundleClient(a.cfg.Bundles, retrier, a.logger),
		Explorer:   explorer,
		Decoder:    decoder.NewInputDecoder(a.logger, a.cfg.Decoder, explorer),
	}

	if a.txs, err = resolver.NewResolver(sources, a.cfg.Resolver, a.logger); err != nil {
		return err
	}
	if a.accounts, err = account.NewResolver(sources, a.cfg.Resolver, a.logger); err != nil {
		return err
	}
	if a.classifier, err = classifier.NewClassifier(a.cfg.Classifier); err != nil {
		return err
	}

	a.logger.Infof("数据源已就绪，补充数据模式: %s", a.cfg.Resolver.EnrichmentMode)
	return nil
}

// output 创建输出并注册关闭
func (a *app) output() (output.Output, error) {
	out, err := output.NewOutput(a.cfg.Output, a.logger)
	if err != nil {
		return nil, fmt.Errorf("创建输出器失败: %w", err)
	}
	a.gs.Register("output", shutdown.OrderFlushOutput, func(context.Context) error {
		return out.Close()
	})
	return out, nil
}

// fail 记录错误统计后返回原错误
func (a *app) fail(ctx context.Context, err error) error {
	_ = a.errors.HandleError(ctx, err)
	return err
}

// close 执行全部停机处理
func (a *app) close() error {
	return a.gs.Shutdown()
}
