package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"txlens/internal/config"
	"txlens/internal/source"
	"txlens/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// ABIProvider 合约源码信息提供者（区块浏览器）
type ABIProvider interface {
	ContractSource(ctx context.Context, address string) (*source.ContractInfo, error)
}

// FourByteResponse 4byte.directory API响应
type FourByteResponse struct {
	Count   int         `json:"count"`
	Results []signature `json:"results"`
}

type signature struct {
	ID            int    `json:"id"`
	TextSignature string `json:"text_signature"`
	HexSignature  string `json:"hex_signature"`
}

// contractEntry 已查询过的合约，未验证合约 abi 为nil
type contractEntry struct {
	name string
	abi  *abi.ABI
}

// commonMethods 常见方法签名，4byte 不可用时使用
var commonMethods = map[string]string{
	"0xa9059cbb": "transfer(address,uint256)",
	"0x095ea7b3": "approve(address,uint256)",
	"0x23b872dd": "transferFrom(address,address,uint256)",
	"0x70a08231": "balanceOf(address)",
	"0xdd62ed3e": "allowance(address,address)",
	"0x40c10f19": "mint(address,uint256)",
	"0x42966c68": "burn(uint256)",
	"0xd0e30db0": "deposit()",
	"0x2e1a7d4d": "withdraw(uint256)",
	"0x7ff36ab5": "swapExactETHForTokens(uint256,address[],address,uint256)",
	"0x38ed1739": "swapExactTokensForTokens(uint256,uint256,address[],address,uint256)",
	"0x18cbafe5": "swapExactTokensForETH(uint256,uint256,address[],address,uint256)",
	"0x414bf389": "exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))",
	"0xac9650d8": "multicall(bytes[])",
}

// InputDecoder 调用数据解码器：优先使用合约ABI，其次 4byte 签名
type InputDecoder struct {
	logger   *logrus.Logger
	config   *config.DecoderConfig
	client   *http.Client
	provider ABIProvider

	mu        sync.RWMutex
	sigCache  map[string]string
	contracts map[string]*contractEntry
}

// NewInputDecoder 创建解码器，provider 为nil时不查询合约ABI
func NewInputDecoder(logger *logrus.Logger, decoderConfig *config.DecoderConfig, provider ABIProvider) *InputDecoder {
	if decoderConfig == nil {
		decoderConfig = config.GetDefaultConfig().Decoder
	}
	if decoderConfig.CacheSize <= 0 {
		decoderConfig.CacheSize = 10000
	}
	if !decoderConfig.EnableABI {
		provider = nil
	}

	return &InputDecoder{
		logger:    logger,
		config:    decoderConfig,
		client:    &http.Client{Timeout: decoderConfig.APITimeout},
		provider:  provider,
		sigCache:  make(map[string]string),
		contracts: make(map[string]*contractEntry),
	}
}

// Decode 解码交易输入，非合约调用返回 (nil, nil)
func (d *InputDecoder) Decode(ctx context.Context, to, input string) (*models.DecodedCall, error) {
	data, err := hexutil.Decode(normalizeHex(input))
	if err != nil {
		return nil, fmt.Errorf("无效的输入数据: %w", err)
	}
	if len(data) < 4 || to == "" {
		return nil, nil
	}

	selector := hexutil.Encode(data[:4])
	var contract *contractEntry
	if d.provider != nil {
		contract, err = d.contract(ctx, to)
		if err != nil {
			return nil, err
		}
	}

	if contract != nil && contract.abi != nil {
		if call, ok := d.decodeWithABI(contract, data); ok {
			return call, nil
		}
	}

	sig := d.getMethodSignature(ctx, selector)
	args, ok := decodeWithSignature(sig, data[4:])
	if !ok {
		args = decodeBasicParameters(data[4:])
	}
	call := &models.DecodedCall{
		Method:    methodName(sig),
		Signature: sig,
		Args:      args,
	}
	if contract != nil {
		call.ContractName = contract.name
	}
	return call, nil
}

// contract 查询并缓存合约信息
func (d *InputDecoder) contract(ctx context.Context, address string) (*contractEntry, error) {
	key := strings.ToLower(address)

	d.mu.RLock()
	entry, ok := d.contracts[key]
	d.mu.RUnlock()
	if ok {
		return entry, nil
	}

	info, err := d.provider.ContractSource(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("获取合约信息失败: %w", err)
	}

	entry = &contractEntry{name: info.Name}
	if info.ABI != "" {
		parsed, err := abi.JSON(strings.NewReader(info.ABI))
		if err != nil {
			d.logger.Debugf("解析合约 %s ABI 失败: %v", address, err)
		} else {
			entry.abi = &parsed
		}
	}

	if d.config.EnableCache {
		d.mu.Lock()
		if len(d.contracts) >= d.config.CacheSize {
			evict(d.contracts, d.config.CacheSize/2)
		}
		d.contracts[key] = entry
		d.mu.Unlock()
	}
	return entry, nil
}

// decodeWithABI 使用合约ABI解码参数
func (d *InputDecoder) decodeWithABI(contract *contractEntry, data []byte) (*models.DecodedCall, bool) {
	method, err := contract.abi.MethodById(data[:4])
	if err != nil {
		return nil, false
	}

	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		d.logger.Debugf("按ABI解码 %s 参数失败: %v", method.Sig, err)
		return nil, false
	}

	args := make([]models.DecodedArg, len(values))
	for i, v := range values {
		arg := method.Inputs[i]
		name := arg.Name
		if name == "" {
			name = fmt.Sprintf("param_%d", i)
		}
		args[i] = models.DecodedArg{Name: name, Type: arg.Type.String(), Value: formatValue(v)}
	}

	return &models.DecodedCall{
		ContractName: contract.name,
		Method:       method.RawName,
		Signature:    method.Sig,
		Args:         args,
	}, true
}

// getMethodSignature 查询方法签名：缓存 -> 4byte -> 常见签名
func (d *InputDecoder) getMethodSignature(ctx context.Context, selector string) string {
	if d.config.EnableCache {
		d.mu.RLock()
		sig, ok := d.sigCache[selector]
		d.mu.RUnlock()
		if ok {
			return sig
		}
	}

	sig := ""
	if d.config.EnableAPI {
		sig = d.fetchFromFourByteDirectory(ctx, selector)
	}
	if sig == "" {
		sig = commonMethods[selector]
	}
	if sig == "" {
		return "unknown"
	}

	if d.config.EnableCache {
		d.mu.Lock()
		if len(d.sigCache) >= d.config.CacheSize {
			evict(d.sigCache, d.config.CacheSize/2)
		}
		d.sigCache[selector] = sig
		d.mu.Unlock()
	}
	return sig
}

// fetchFromFourByteDirectory 从4byte.directory API获取方法签名，取最早登记的签名
func (d *InputDecoder) fetchFromFourByteDirectory(ctx context.Context, selector string) string {
	endpoint := fmt.Sprintf("%s?hex_signature=%s", d.config.FourByteAPIURL, url.QueryEscape(selector))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Debugf("4byte.directory API调用失败: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Debugf("4byte.directory API返回错误状态: %d", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		d.logger.Debugf("读取4byte.directory响应失败: %v", err)
		return ""
	}

	var response FourByteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		d.logger.Debugf("解析4byte.directory响应失败: %v", err)
		return ""
	}
	if len(response.Results) == 0 {
		return ""
	}

	oldest := response.Results[0]
	for _, r := range response.Results[1:] {
		if r.ID < oldest.ID {
			oldest = r
		}
	}
	return oldest.TextSignature
}

// decodeBasicParameters 无ABI时按32字节字切分参数
// decodeWithSignature 按文本签名中的参数类型解码，签名无法解析或数据不匹配时返回 false
func decodeWithSignature(sig string, data []byte) ([]models.DecodedArg, bool) {
	types, ok := signatureTypes(sig)
	if !ok || len(types) == 0 {
		return nil, false
	}

	args := make(abi.Arguments, 0, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, false
		}
		args = append(args, abi.Argument{Name: fmt.Sprintf("param_%d", i), Type: typ})
	}

	values, err := args.Unpack(data)
	if err != nil || len(values) != len(args) {
		return nil, false
	}

	out := make([]models.DecodedArg, len(args))
	for i, arg := range args {
		out[i] = models.DecodedArg{
			Name:  arg.Name,
			Type:  arg.Type.String(),
			Value: formatValue(values[i]),
		}
	}
	return out, true
}

// signatureTypes 提取 "name(t1,t2)" 中的顶层参数类型；tuple 类型不支持
func signatureTypes(sig string) ([]string, bool) {
	open := strings.Index(sig, "(")
	if open <= 0 || !strings.HasSuffix(sig, ")") {
		return nil, false
	}
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return []string{}, true
	}
	if strings.ContainsAny(inner, "() ") {
		return nil, false
	}
	types := strings.Split(inner, ",")
	for _, t := range types {
		if t == "" {
			return nil, false
		}
	}
	return types, true
}

func decodeBasicParameters(data []byte) []models.DecodedArg {
	const wordSize = 32
	const maxParams = 10

	var args []models.DecodedArg
	for i := 0; i < maxParams && (i+1)*wordSize <= len(data); i++ {
		word := data[i*wordSize : (i+1)*wordSize]
		arg := models.DecodedArg{Name: fmt.Sprintf("param_%d", i)}

		// 前12字节为0且后20字节非0时按地址处理
		if isZero(word[:12]) && !isZero(word[12:]) {
			arg.Type = "address"
			arg.Value = common.BytesToAddress(word[12:]).Hex()
		} else {
			arg.Type = "bytes32"
			arg.Value = hexutil.Encode(word)
		}
		args = append(args, arg)
	}
	return args
}

// GetCacheSize 获取签名缓存大小
func (d *InputDecoder) GetCacheSize() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sigCache)
}

// ClearCache 清理缓存
func (d *InputDecoder) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sigCache = make(map[string]string)
	d.contracts = make(map[string]*contractEntry)
}

func evict[V any](cache map[string]V, keep int) {
	for key := range cache {
		if len(cache) <= keep {
			return
		}
		delete(cache, key)
	}
}

func methodName(sig string) string {
	if i := strings.Index(sig, "("); i > 0 {
		return sig[:i]
	}
	return sig
}

func normalizeHex(s string) string {
	if s == "" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "0x" + s
	}
	return s
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case []common.Address:
		parts := make([]string, len(val))
		for i, a := range val {
			parts[i] = a.Hex()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case *big.Int:
		return val.String()
	case []byte:
		return hexutil.Encode(val)
	case [32]byte:
		return hexutil.Encode(val[:])
	default:
		return fmt.Sprintf("%v", val)
	}
}
