package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序
const (
	OrderStopServer   = 10 // 停止接受API请求
	OrderCancelJobs   = 20 // 取消正在进行的导出
	OrderFlushOutput  = 30 // 刷新Kafka/文件输出
	OrderSaveProgress = 40 // 关闭进度数据库
	OrderCloseSources = 50 // 关闭节点和中继连接
)

// Hook 停机处理函数
type Hook struct {
	Name  string
	Order int
	Func  func(ctx context.Context) error
}

// GracefulShutdown 优雅停机管理器
//
// 收到信号或调用 Shutdown 后取消 Context，然后按 Order 从小到大执行已注册的处理函数。
type GracefulShutdown struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook

	signals chan os.Signal
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
	err     error
}

// NewGracefulShutdown 创建优雅停机管理器，父上下文取消时同样触发停机
func NewGracefulShutdown(parent context.Context, timeout time.Duration, logger *logrus.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(parent)

	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		signals: make(chan os.Signal, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.hooks = append(gs.hooks, Hook{Name: name, Order: order, Func: fn})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// Start 开始监听 SIGINT/SIGTERM
func (gs *GracefulShutdown) Start() {
	signal.Notify(gs.signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-gs.signals:
			gs.logger.Infof("收到停机信号: %v", sig)
		case <-gs.ctx.Done():
		}
		gs.Shutdown()
	}()
}

// Context 停机开始时被取消的上下文
func (gs *GracefulShutdown) Context() context.Context {
	return gs.ctx
}

// Shutdown 执行停机流程，多次调用只执行一次
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		signal.Stop(gs.signals)
		gs.cancel()
		gs.err = gs.runHooks()
		close(gs.done)
	})
	<-gs.done
	return gs.err
}

// Wait 等待停机完成
func (gs *GracefulShutdown) Wait() error {
	<-gs.done
	return gs.err
}

// Hooks 按执行顺序返回已注册的处理函数名称
func (gs *GracefulShutdown) Hooks() []string {
	hooks := gs.sorted()
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = h.Name
	}
	return names
}

func (gs *GracefulShutdown) sorted() []Hook {
	gs.mu.Lock()
	hooks := make([]Hook, len(gs.hooks))
	copy(hooks, gs.hooks)
	gs.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Order < hooks[j].Order })
	return hooks
}

// runHooks 按顺序执行，单个失败不影响后续处理
func (gs *GracefulShutdown) runHooks() error {
	gs.logger.Info("开始优雅停机流程...")

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	var errs []error
	for _, hook := range gs.sorted() {
		if ctx.Err() != nil {
			gs.logger.Warnf("停机超时，跳过: %s", hook.Name)
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := hook.Func(ctx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", hook.Name, time.Since(start), err)
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			continue
		}
		gs.logger.Debugf("停机处理 '%s' 完成 (耗时: %v)", hook.Name, time.Since(start))
	}

	if len(errs) > 0 {
		gs.logger.Errorf("停机过程中发生 %d 个错误", len(errs))
		return errors.Join(errs...)
	}
	gs.logger.Info("优雅停机流程完成")
	return nil
}
