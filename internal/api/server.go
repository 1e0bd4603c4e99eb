package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"txlens/internal/classifier"
	"txlens/internal/config"
	"txlens/internal/errors"
	"txlens/internal/validation"
	"txlens/pkg/models"
)

// TransactionResolver 单笔交易解析
type TransactionResolver interface {
	ResolveTransaction(ctx context.Context, hash string) (*models.TransactionRecord, error)
}

// AccountResolver 账户分页解析
type AccountResolver interface {
	ResolveAccount(ctx context.Context, address string, pageSize, page int) (*models.AccountOverview, error)
}

// NodeStats 节点连接池状态
type NodeStats interface {
	GetStats() map[string]interface{}
}

// Deps 服务器依赖
type Deps struct {
	Transactions TransactionResolver
	Accounts     AccountResolver
	Classifier   *classifier.Classifier
	Validator    *validation.Validator
	Errors       *errors.ErrorHandler
	Nodes        NodeStats
}

// Server API服务器
type Server struct {
	deps       Deps
	config     *config.Config
	logger     *logrus.Logger
	logManager *LogManager
	server     *http.Server
	startTime  time.Time
}

// accountResponse 账户响应，交易替换为带标签的版本
type accountResponse struct {
	*models.AccountOverview
	Transactions []*models.LabeledTransaction `json:"transactions"`
}

// NewServer 创建API服务器，并将日志钩子挂到 logger 上
func NewServer(cfg *config.Config, deps Deps, logger *logrus.Logger) (*Server, error) {
	if deps.Transactions == nil || deps.Accounts == nil || deps.Classifier == nil {
		return nil, errors.ConfigFailure("API缺少解析器或分类器")
	}
	if deps.Errors == nil {
		deps.Errors = errors.NewErrorHandler(logger)
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewValidator(logger, false)
	}

	logManager := NewLogManager(cfg.API.MaxLogs)
	logger.AddHook(NewLogHook(logManager))

	return &Server{
		deps:       deps,
		config:     cfg,
		logger:     logger,
		logManager: logManager,
		startTime:  time.Now(),
	}, nil
}

// Router 构建路由
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept-Encoding")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	router.Use(gin.Recovery())

	router.GET("/health", s.healthCheck)
	if s.config.API.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/tx/:hash", s.getTransaction)
		api.GET("/account/:address", s.getAccount)
		api.GET("/sort-keys", s.getSortKeys)

		api.GET("/stats", s.getStats)
		api.GET("/config", s.getConfig)
		api.GET("/nodes", s.getNodes)

		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)
	}

	return router
}

// Start 启动API服务器，阻塞直到 Stop
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.API.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("API服务器启动在端口 %d", s.config.API.Port)
	if err := s.server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止API服务器，等待进行中的请求完成
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("正在关闭API服务器...")
	return s.server.Shutdown(ctx)
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "txlens-api",
	})
}

// getTransaction 解析单笔交易
func (s *Server) getTransaction(c *gin.Context) {
	hash := c.Param("hash")
	if err := validation.ValidateTxHash(hash); err != nil {
		s.fail(c, err)
		return
	}

	record, err := s.deps.Transactions.ResolveTransaction(c.Request.Context(), hash)
	if err != nil {
		s.fail(c, err)
		return
	}

	if !record.Found() {
		c.JSON(http.StatusNotFound, gin.H{"transaction": record})
		return
	}

	if result := s.deps.Validator.ValidateRecord(record); !result.Valid {
		s.logger.WithField("tx_hash", record.Hash).Warnf("交易记录未通过校验: %d 个错误", len(result.Errors))
	}

	labeled := s.deps.Classifier.Label([]*models.TransactionRecord{record})
	c.JSON(http.StatusOK, gin.H{"transaction": labeled[0]})
}

// getAccount 解析账户一页交易，可选排序
func (s *Server) getAccount(c *gin.Context) {
	address := c.Param("address")
	if err := validation.ValidateAddress(address); err != nil {
		s.fail(c, err)
		return
	}

	pageSize, err := intQuery(c, "pageSize", s.config.Resolver.DefaultPageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := intQuery(c, "page", 1)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := validation.ValidatePage(pageSize, page, s.config.Resolver.MaxPageSize); err != nil {
		s.fail(c, err)
		return
	}

	orderBy := c.Query("orderBy")
	order := c.DefaultQuery("order", classifier.OrderAsc)
	if orderBy != "" {
		// 先校验排序参数，避免无效请求访问数据源
		if err := classifier.Sort(nil, orderBy, order); err != nil {
			s.fail(c, errors.ValidationFailure("orderBy", err))
			return
		}
	}

	overview, err := s.deps.Accounts.ResolveAccount(c.Request.Context(), address, pageSize, page)
	if err != nil {
		s.fail(c, err)
		return
	}

	if result := s.deps.Validator.ValidateAccount(overview); !result.Valid {
		s.logger.WithField("address", overview.Address).Warnf("账户数据未通过校验: %d 个错误", len(result.Errors))
	}

	labeled := s.deps.Classifier.Label(overview.Transactions)
	if orderBy != "" {
		_ = classifier.Sort(labeled, orderBy, order)
	}

	c.JSON(http.StatusOK, gin.H{
		"account":  accountResponse{AccountOverview: overview, Transactions: labeled},
		"page":     page,
		"pageSize": pageSize,
		"orderBy":  orderBy,
		"order":    order,
	})
}

// getSortKeys 支持的排序字段
func (s *Server) getSortKeys(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": classifier.SortKeys()})
}

// getStats 获取统计信息
func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime":     time.Since(s.startTime).String(),
		"errors":     s.deps.Errors.Snapshot(),
		"validation": s.deps.Validator.GetValidationStats(),
	})
}

// getNodes 获取节点状态
func (s *Server) getNodes(c *gin.Context) {
	if s.deps.Nodes == nil {
		c.JSON(http.StatusOK, gin.H{"nodes": []gin.H{}, "message": "未配置节点连接池"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Nodes.GetStats())
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	pageSize := 20
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()
	c.JSON(http.StatusOK, gin.H{"message": "日志已清空"})
}

// fail 记录错误并按错误类型返回HTTP状态码
func (s *Server) fail(c *gin.Context, err error) {
	_ = s.deps.Errors.HandleError(c.Request.Context(), err)

	body := gin.H{"error": err.Error()}
	var lensErr *errors.LensError
	if stderrors.As(err, &lensErr) {
		body["code"] = lensErr.Code
		body["type"] = lensErr.Type.String()
		body["retryable"] = lensErr.Retryable
	}
	c.JSON(statusFor(err), body)
}

// statusFor 错误类型 -> HTTP状态码
func statusFor(err error) int {
	if stderrors.Is(err, context.Canceled) {
		return 499
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}

	var lensErr *errors.LensError
	if !stderrors.As(err, &lensErr) {
		return http.StatusInternalServerError
	}
	switch lensErr.Type {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrorTypePrimarySource, errors.ErrorTypeNetwork, errors.ErrorTypeExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationFailure(name, err)
	}
	return v, nil
}
