package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"txlens/internal/config"
)

const redacted = "***"

// getConfig 返回当前生效的配置，隐藏密钥和节点地址中的凭据
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": redactConfig(s.config)})
}

// redactConfig 复制配置并隐藏敏感字段
func redactConfig(cfg *config.Config) *config.Config {
	out := *cfg

	if cfg.Blockchain != nil {
		bc := *cfg.Blockchain
		bc.Nodes = make([]*config.NodeConfig, len(cfg.Blockchain.Nodes))
		for i, node := range cfg.Blockchain.Nodes {
			n := *node
			n.URL = redactURL(n.URL)
			bc.Nodes[i] = &n
		}
		out.Blockchain = &bc
	}

	if cfg.Relay != nil {
		relay := *cfg.Relay
		relay.RPCURL = redactURL(relay.RPCURL)
		out.Relay = &relay
	}

	if cfg.Explorer != nil {
		explorer := *cfg.Explorer
		if explorer.APIKey != "" {
			explorer.APIKey = redacted
		}
		out.Explorer = &explorer
	}

	return &out
}

// redactURL 只保留协议和主机，节点地址的路径和参数里常带有API密钥
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	if u.Path == "" && u.RawQuery == "" && u.User == nil {
		return raw
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}
