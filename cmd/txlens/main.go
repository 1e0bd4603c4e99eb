package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"txlens/internal/api"
	"txlens/internal/classifier"
	"txlens/internal/config"
	"txlens/internal/export"
	"txlens/internal/progress"
	"txlens/internal/shutdown"
	"txlens/internal/validation"
	"txlens/pkg/models"
)

var (
	// 通用参数
	configFile string
	envFile    string
	verbose    bool

	// 账户参数
	pageSize int
	page     int
	orderBy  string
	order    string

	// 导出参数
	maxPages      int
	resetProgress bool
	split         bool
	strict        bool

	// 服务参数
	port int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "txlens",
		Short:         "以太坊交易状态核对工具",
		Long:          `合并公共内存池、私有中继、回执、bundle 索引、质押与 slot 委托数据，给出交易的统一状态和分类`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "configs/config.yaml", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "环境变量文件")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "详细输出")

	txCmd := &cobra.Command{
		Use:   "tx <hash>",
		Short: "解析单笔交易",
		Args:  cobra.ExactArgs(1),
		RunE:  runTx,
	}

	accountCmd := &cobra.Command{
		Use:   "account <address>",
		Short: "解析账户一页交易",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccount,
	}
	accountCmd.Flags().IntVar(&pageSize, "page-size", 0, "每页交易数（默认使用配置）")
	accountCmd.Flags().IntVar(&page, "page", 1, "页码")
	accountCmd.Flags().StringVar(&orderBy, "order-by", "", "排序字段: "+strings.Join(classifier.SortKeys(), ", "))
	accountCmd.Flags().StringVar(&order, "order", classifier.OrderAsc, "排序方向 (asc|desc)")

	exportCmd := &cobra.Command{
		Use:   "export <address>",
		Short: "分页导出账户全部交易，支持断点续传",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().IntVar(&pageSize, "page-size", 0, "每页交易数（默认使用配置）")
	exportCmd.Flags().IntVar(&maxPages, "max-pages", 0, "最多导出页数，0 表示不限制")
	exportCmd.Flags().BoolVar(&resetProgress, "reset-progress", false, "重置进度重新开始")
	exportCmd.Flags().BoolVar(&split, "split", false, "每笔交易单独输出一条")
	exportCmd.Flags().BoolVar(&strict, "strict", false, "严格校验，警告也计为无效")

	progressCmd := &cobra.Command{
		Use:   "progress [address]",
		Short: "查看导出进度",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showProgress,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "启动HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&port, "port", 0, "API 服务端口（默认使用配置）")

	rootCmd.AddCommand(txCmd, accountCmd, exportCmd, progressCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "执行失败: %v\n", err)
		os.Exit(1)
	}
}

func runTx(cmd *cobra.Command, args []string) error {
	hash := args[0]
	if err := validation.ValidateTxHash(hash); err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := a.gs.Context()

	out, err := a.output()
	if err != nil {
		return err
	}

	record, err := a.txs.ResolveTransaction(ctx, hash)
	if err != nil {
		return a.fail(ctx, err)
	}

	if !record.Found() {
		a.logger.Infof("交易 %s 未找到", hash)
		return out.WriteTransaction(record)
	}

	if res := validation.NewValidator(a.logger, false).ValidateRecord(record); !res.Valid {
		a.logger.Warnf("交易记录未通过校验: %d 个错误", len(res.Errors))
	}

	labeled := a.classifier.Label([]*models.TransactionRecord{record})[0]
	a.logger.WithFields(logrus.Fields{
		"tx_hash":  record.Hash,
		"state":    record.State,
		"type":     labeled.Type,
		"category": labeled.Category,
	}).Info("交易解析完成")

	return out.WriteTransaction(record)
}

func runAccount(cmd *cobra.Command, args []string) error {
	address := args[0]
	if err := validation.ValidateAddress(address); err != nil {
		return err
	}
	if orderBy != "" {
		if err := classifier.Sort(nil, orderBy, order); err != nil {
			return err
		}
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := a.gs.Context()

	size := pageSize
	if size == 0 {
		size = a.cfg.Resolver.DefaultPageSize
	}
	if err := validation.ValidatePage(size, page, a.cfg.Resolver.MaxPageSize); err != nil {
		return err
	}

	out, err := a.output()
	if err != nil {
		return err
	}

	overview, err := a.accounts.ResolveAccount(ctx, address, size, page)
	if err != nil {
		return a.fail(ctx, err)
	}

	labeled := a.classifier.Label(overview.Transactions)
	if orderBy != "" {
		if err := classifier.Sort(labeled, orderBy, order); err != nil {
			return err
		}
		overview.Transactions = make([]*models.TransactionRecord, len(labeled))
		for i, l := range labeled {
			overview.Transactions[i] = l.TransactionRecord
		}
	}

	a.logger.Infof("账户 %s 第 %d 页: %d 笔交易，总交易数 %d", overview.Address, page, len(overview.Transactions), overview.TxCount)
	return out.WriteAccount(overview)
}

func runExport(cmd *cobra.Command, args []string) error {
	address := args[0]
	if err := validation.ValidateAddress(address); err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := a.gs.Context()

	size := pageSize
	if size == 0 {
		size = a.cfg.Resolver.DefaultPageSize
	}
	if err := validation.ValidatePage(size, 1, a.cfg.Resolver.MaxPageSize); err != nil {
		return err
	}

	out, err := a.output()
	if err != nil {
		return err
	}

	pm, err := progress.NewManager(a.cfg.Progress.DBPath, a.logger)
	if err != nil {
		return err
	}
	a.gs.Register("progress", shutdown.OrderSaveProgress, func(context.Context) error {
		return pm.Close()
	})

	exporter := export.NewExporter(a.accounts, out, pm, validation.NewValidator(a.logger, strict), a.logger)
	result, err := exporter.Export(ctx, address, export.Options{
		PageSize:          size,
		MaxPages:          maxPages,
		Reset:             resetProgress,
		SplitTransactions: split,
	})
	if result != nil {
		a.logger.Info("导出结束，统计信息:")
		a.logger.Infof("  起始页: %d", result.StartPage)
		a.logger.Infof("  导出页数: %d", result.Pages)
		a.logger.Infof("  总交易数: %d", result.TotalTransactions)
		a.logger.Infof("  未通过校验: %d", result.InvalidRecords)
		a.logger.Infof("  是否完成: %t", result.Completed)
		a.logger.Infof("  耗时: %s", result.Duration)
		a.logger.Infof("  交易/秒: %.2f", result.TransactionsPerSecond)
	}
	if err != nil {
		return a.fail(ctx, err)
	}
	return nil
}

// showProgress 显示导出进度，不连接任何数据源
func showProgress(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	path := configFile
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	pm, err := progress.NewManager(cfg.Progress.DBPath, logger)
	if err != nil {
		return err
	}
	defer pm.Close()

	var list []*progress.ExportProgress
	if len(args) == 1 {
		p, err := pm.GetProgress(args[0])
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Printf("账户 %s 没有导出记录\n", args[0])
			return nil
		}
		list = append(list, p)
	} else if list, err = pm.List(); err != nil {
		return err
	}

	fmt.Println("导出进度信息")
	fmt.Println(strings.Repeat("=", 50))
	for _, p := range list {
		for _, key := range []string{"address", "last_page", "page_size", "total_transactions", "completed", "last_update_time"} {
			fmt.Printf("%-20s: %v\n", key, pm.GetStats(p.Address)[key])
		}
		fmt.Println(strings.Repeat("-", 50))
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if port > 0 {
		a.cfg.API.Port = port
	}

	server, err := api.NewServer(a.cfg, api.Deps{
		Transactions: a.txs,
		Accounts:     a.accounts,
		Classifier:   a.classifier,
		Validator:    validation.NewValidator(a.logger, false),
		Errors:       a.errors,
		Nodes:        a.pool,
	}, a.logger)
	if err != nil {
		_ = a.close()
		return err
	}
	a.gs.Register("api-server", shutdown.OrderStopServer, server.Stop)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		_ = a.close()
		return err
	case <-a.gs.Context().Done():
	}
	return a.gs.Wait()
}
