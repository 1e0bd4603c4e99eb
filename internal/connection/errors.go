package connection

import (
	"errors"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// isConnectionError 判断是否为节点连接层面的错误（需要切换节点）
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == 429
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "eof", "no such host", "client is closed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
