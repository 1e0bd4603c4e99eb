package connection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"txlens/internal/config"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const (
	defaultHealthInterval = 30 * time.Second
	dialTimeout           = 10 * time.Second
	probeTimeout          = 5 * time.Second
)

// Node 单个以太坊节点连接，rpc.Client 本身并发安全
type Node struct {
	Name     string
	URL      string
	Priority int

	rpc *rpc.Client
	eth *ethclient.Client

	mu        sync.RWMutex
	isHealthy bool
	lastCheck time.Time
	lastErr   error
}

// RPC 底层 JSON-RPC 客户端
func (n *Node) RPC() *rpc.Client {
	return n.rpc
}

// Eth ethclient 封装
func (n *Node) Eth() *ethclient.Client {
	return n.eth
}

// IsHealthy 节点是否健康
func (n *Node) IsHealthy() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.isHealthy
}

func (n *Node) setHealth(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isHealthy = err == nil
	n.lastErr = err
	n.lastCheck = time.Now()
}

// probe 通过 eth_chainId 检测节点
func (n *Node) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := n.eth.ChainID(ctx)
	return err
}

// ConnectionPool 按优先级排列的节点连接池
type ConnectionPool struct {
	nodes          []*Node
	logger         *logrus.Logger
	healthInterval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewConnectionPool 拨号所有节点，至少一个节点可用时返回
func NewConnectionPool(ctx context.Context, nodes []*config.NodeConfig, logger *logrus.Logger) (*ConnectionPool, error) {
	cp := newPool(logger)

	for _, nc := range nodes {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		client, err := rpc.DialContext(dialCtx, nc.URL)
		cancel()
		if err != nil {
			logger.Warnf("初始化节点 %s 连接失败: %v", nc.Name, err)
			continue
		}

		node := newNode(nc.Name, nc.URL, nc.Priority, client)
		node.setHealth(node.probe(ctx))
		if !node.IsHealthy() {
			logger.Warnf("节点 %s 初始健康检查失败: %v", nc.Name, node.lastErr)
		}
		cp.nodes = append(cp.nodes, node)
		logger.Infof("节点 %s 连接已初始化", nc.Name)
	}

	if len(cp.nodes) == 0 {
		return nil, fmt.Errorf("没有可用的节点连接")
	}
	cp.sortNodes()

	cp.wg.Add(1)
	go cp.healthChecker()

	return cp, nil
}

// NewConnectionPoolFromClients 使用已建立的 rpc 客户端构建连接池，不启动健康检查
func NewConnectionPoolFromClients(clients map[string]*rpc.Client, logger *logrus.Logger) *ConnectionPool {
	cp := newPool(logger)
	for name, client := range clients {
		node := newNode(name, "", 0, client)
		node.setHealth(nil)
		cp.nodes = append(cp.nodes, node)
	}
	cp.sortNodes()
	return cp
}

func newPool(logger *logrus.Logger) *ConnectionPool {
	return &ConnectionPool{
		logger:         logger,
		healthInterval: defaultHealthInterval,
		stop:           make(chan struct{}),
	}
}

func newNode(name, url string, priority int, client *rpc.Client) *Node {
	return &Node{
		Name:     name,
		URL:      url,
		Priority: priority,
		rpc:      client,
		eth:      ethclient.NewClient(client),
	}
}

func (cp *ConnectionPool) sortNodes() {
	sort.SliceStable(cp.nodes, func(i, j int) bool {
		if cp.nodes[i].Priority != cp.nodes[j].Priority {
			return cp.nodes[i].Priority < cp.nodes[j].Priority
		}
		return cp.nodes[i].Name < cp.nodes[j].Name
	})
}

// GetNode 返回优先级最高的健康节点，全部不健康时返回优先级最高的节点
func (cp *ConnectionPool) GetNode() (*Node, error) {
	if len(cp.nodes) == 0 {
		return nil, fmt.Errorf("没有可用的节点")
	}
	for _, node := range cp.nodes {
		if node.IsHealthy() {
			return node, nil
		}
	}
	return cp.nodes[0], nil
}

// Do 依次在健康节点上执行 fn，直到成功或所有节点失败
func (cp *ConnectionPool) Do(ctx context.Context, fn func(*Node) error) error {
	var lastErr error
	tried := 0

	for _, node := range cp.ordered() {
		if err := ctx.Err(); err != nil {
			return err
		}
		tried++
		err := fn(node)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if isConnectionError(err) {
			node.setHealth(err)
			cp.logger.Warnf("节点 %s 请求失败，切换节点: %v", node.Name, err)
			continue
		}
		// 节点返回了业务错误，其他节点大概率相同
		return err
	}

	if tried == 0 {
		return fmt.Errorf("没有可用的节点")
	}
	return lastErr
}

// ordered 健康节点在前，其余节点按优先级在后
func (cp *ConnectionPool) ordered() []*Node {
	healthy := make([]*Node, 0, len(cp.nodes))
	var unhealthy []*Node
	for _, node := range cp.nodes {
		if node.IsHealthy() {
			healthy = append(healthy, node)
		} else {
			unhealthy = append(unhealthy, node)
		}
	}
	return append(healthy, unhealthy...)
}

// healthChecker 健康检查器
func (cp *ConnectionPool) healthChecker() {
	defer cp.wg.Done()

	ticker := time.NewTicker(cp.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stop:
			return
		case <-ticker.C:
			cp.checkAll()
		}
	}
}

func (cp *ConnectionPool) checkAll() {
	for _, node := range cp.nodes {
		err := node.probe(context.Background())
		node.setHealth(err)
		if err == nil {
			cp.logger.Debugf("节点 %s 健康检查通过", node.Name)
		} else {
			cp.logger.Warnf("节点 %s 健康检查失败: %v", node.Name, err)
		}
	}
}

// GetStats 获取连接池统计信息
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := make(map[string]interface{}, len(cp.nodes))
	for _, node := range cp.nodes {
		node.mu.RLock()
		nodeStats := map[string]interface{}{
			"priority":   node.Priority,
			"is_healthy": node.isHealthy,
			"last_check": node.lastCheck.Format(time.RFC3339),
		}
		if node.lastErr != nil {
			nodeStats["last_error"] = node.lastErr.Error()
		}
		node.mu.RUnlock()
		stats[node.Name] = nodeStats
	}
	return stats
}

// Close 关闭连接池
func (cp *ConnectionPool) Close() error {
	cp.stopOnce.Do(func() {
		close(cp.stop)
		cp.wg.Wait()
		for _, node := range cp.nodes {
			node.rpc.Close()
		}
		cp.logger.Info("连接池已关闭")
	})
	return nil
}
