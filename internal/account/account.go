// Package account 按页解析账户交易，区块级数据对页内去重后的区块只查询一次
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"txlens/internal/config"
	"txlens/internal/errors"
	"txlens/internal/logging"
	"txlens/internal/metrics"
	"txlens/internal/normalize"
	"txlens/internal/resolver"
	"txlens/internal/source"
	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// 账户级与批量查询的数据源名，同时作为 EnrichmentErrors 的键
const (
	SourceStake      = "stake"
	SourceTxCount    = "tx_count"
	SourceDelegates  = "slot_delegates"
	SourceBlockMeta  = resolver.BranchBlockMeta
	SourceRelayBlock = resolver.BranchRelayBlock
	SourceRelayMatch = "relay_match"
	SourceParse      = "parse"
)

// Resolver 账户批量解析器
type Resolver struct {
	src    resolver.Sources
	config *config.ResolverConfig
	logger *logrus.Logger
}

// NewResolver 创建账户解析器，需要区块浏览器、节点和中继数据源
func NewResolver(src resolver.Sources, cfg *config.ResolverConfig, logger *logrus.Logger) (*Resolver, error) {
	if src.Explorer == nil || src.Node == nil || src.Relay == nil {
		return nil, errors.ConfigFailure("账户解析缺少区块浏览器、节点或中继数据源")
	}
	if cfg == nil {
		cfg = config.GetDefaultConfig().Resolver
	}
	return &Resolver{src: src, config: cfg, logger: logger}, nil
}

// accountResult 账户级查询结果，各自独立失败
type accountResult struct {
	stake     *source.StakeInfo
	txCount   uint64
	delegates map[string]int
	errs      map[string]error
}

// batchResult 页内批量查询结果
type batchResult struct {
	meta        *models.BlockMetaBatch
	relayBlocks map[uint64]bool
	relayTxs    map[string]*source.RelayRecord
	errs        map[string]error
}

// ResolveAccount 解析账户一页交易
//
// 交易列表查询失败时返回错误；其余数据源失败只影响对应字段。
func (r *Resolver) ResolveAccount(ctx context.Context, address string, pageSize, page int) (*models.AccountOverview, error) {
	started := time.Now()
	pageSize, page = r.normalizePage(pageSize, page)
	log := logging.NewAccountLogger(r.logger, address, page)

	var (
		txs     []source.ExplorerTx
		acc     = accountResult{errs: make(map[string]error)}
		accErrs = make([]error, 3)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := r.src.Explorer.AccountTransactions(gctx, strings.ToLower(address), pageSize, page)
		if err != nil {
			return errors.PrimarySourceFailure("explorer.txlist", err)
		}
		txs = list
		return nil
	})
	g.Go(func() error {
		if r.src.Stake == nil {
			return nil
		}
		acc.stake, accErrs[0] = r.src.Stake.Stake(gctx, strings.ToLower(address), nil)
		return nil
	})
	g.Go(func() error {
		acc.txCount, accErrs[1] = r.src.Node.TransactionCount(gctx, address)
		return nil
	})
	g.Go(func() error {
		if r.src.Delegation == nil {
			return nil
		}
		acc.delegates, accErrs[2] = r.src.Delegation.SlotDelegates(gctx, nil)
		return nil
	})

	if err := g.Wait(); err != nil {
		metrics.ObserveResolution("account", "error", started)
		return nil, err
	}
	for i, name := range []string{SourceStake, SourceTxCount, SourceDelegates} {
		if accErrs[i] != nil {
			acc.errs[name] = accErrs[i]
		}
	}

	batch := r.fetchBatch(ctx, log, txs)

	overview := &models.AccountOverview{
		Address:      normalize.ChecksumAddress(address),
		Transactions: make([]*models.TransactionRecord, 0, len(txs)),
	}
	r.applyAccount(overview, address, &acc)

	for i := range txs {
		record, err := buildRecord(&txs[i], batch)
		if err != nil {
			// 单行字段异常只降级该行，不影响整页
			wrapped := errors.WrapError(err, errors.ErrorTypeData, errors.SeverityMedium,
				errors.CodeInvalidData, "账户交易字段解析失败").WithTxHash(txs[i].Hash)
			metrics.IncEnrichmentFailure(SourceParse, "account")
			log.WithField("tx_hash", txs[i].Hash).Warn(wrapped.Error())
			record = degradedRecord(&txs[i], err)
		}
		overview.Transactions = append(overview.Transactions, record)
	}

	for name, err := range acc.errs {
		metrics.IncEnrichmentFailure(name, "account")
		log.WithField("source", name).Warnf("账户数据获取失败: %v", err)
	}

	metrics.ObserveResolution("account", "ok", started)
	log.WithField("transactions", len(overview.Transactions)).Debug("账户解析完成")
	return overview, nil
}

// normalizePage 分页参数缺省和上限
func (r *Resolver) normalizePage(pageSize, page int) (int, int) {
	if pageSize <= 0 {
		pageSize = r.config.DefaultPageSize
	}
	if r.config.MaxPageSize > 0 && pageSize > r.config.MaxPageSize {
		pageSize = r.config.MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, page
}

// fetchBatch 对去重后的区块和页内哈希并发执行三个批量查询
func (r *Resolver) fetchBatch(ctx context.Context, log *logrus.Entry, txs []source.ExplorerTx) *batchResult {
	res := &batchResult{errs: make(map[string]error)}
	if len(txs) == 0 {
		return res
	}

	blocks := uniqueBlocks(txs)
	hashes := make([]string, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash
	}

	errs := make([]error, 3)
	var g errgroup.Group
	g.Go(func() error {
		res.meta, errs[0] = r.src.Node.BlockMetadata(ctx, blocks)
		return nil
	})
	g.Go(func() error {
		if r.src.Membership == nil {
			return nil
		}
		res.relayBlocks, errs[1] = r.src.Membership.RelayBlocks(ctx, blocks)
		return nil
	})
	g.Go(func() error {
		res.relayTxs, errs[2] = r.src.Relay.RelayTransactions(ctx, hashes)
		return nil
	})
	_ = g.Wait()

	for i, name := range []string{SourceBlockMeta, SourceRelayBlock, SourceRelayMatch} {
		if errs[i] != nil {
			res.errs[name] = errs[i]
			metrics.IncEnrichmentFailure(name, "account")
			log.WithField("source", name).Warnf("批量查询失败: %v", errs[i])
		}
	}

	if res.meta != nil && len(res.meta.Failed) > 0 {
		partial := errors.BatchPartialFailure(SourceBlockMeta, len(res.meta.Failed), len(blocks))
		log.Warn(partial.Error())
	}
	return res
}

// uniqueBlocks 页内区块号去重，保持首次出现顺序
func uniqueBlocks(txs []source.ExplorerTx) []uint64 {
	seen := make(map[uint64]struct{}, len(txs))
	blocks := make([]uint64, 0, len(txs))
	for _, tx := range txs {
		n, err := normalize.ParseUint64(tx.BlockNumber)
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		blocks = append(blocks, n)
	}
	return blocks
}

// applyAccount 写入账户级字段
func (r *Resolver) applyAccount(overview *models.AccountOverview, address string, acc *accountResult) {
	if acc.stake != nil {
		if acc.stake.Staked != nil {
			overview.Staked = normalize.Ptr(normalize.WeiToEther(acc.stake.Staked))
		}
		if acc.stake.Rank != nil {
			overview.StakerRank = normalize.Ptr(*acc.stake.Rank)
		}
	}
	if _, failed := acc.errs[SourceTxCount]; !failed {
		overview.TxCount = acc.txCount
	}
	if slot, ok := acc.delegates[strings.ToLower(address)]; ok {
		overview.SlotDelegate = normalize.Ptr(slot)
	}

	if len(acc.errs) > 0 {
		overview.EnrichmentErrors = make(map[string]string, len(acc.errs))
		for name, err := range acc.errs {
			overview.EnrichmentErrors[name] = err.Error()
		}
	}
}

// buildRecord 由区块浏览器交易和批量结果构造已上链记录
func buildRecord(tx *source.ExplorerTx, batch *batchResult) (*models.TransactionRecord, error) {
	block, err := normalize.ParseUint64(tx.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("blockNumber: %w", err)
	}
	index, err := normalize.ParseUint64(tx.TransactionIndex)
	if err != nil {
		return nil, fmt.Errorf("transactionIndex: %w", err)
	}
	nonce, err := normalize.ParseUint64(tx.Nonce)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	value, err := normalize.ParseQuantity(tx.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	gas, err := normalize.ParseUint64(tx.Gas)
	if err != nil {
		return nil, fmt.Errorf("gas: %w", err)
	}
	gasPriceWei, err := normalize.ParseQuantity(tx.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("gasPrice: %w", err)
	}
	gasPrice := normalize.WeiToGwei(gasPriceWei)

	record := &models.TransactionRecord{
		Hash:     tx.Hash,
		From:     normalize.ChecksumAddress(tx.From),
		To:       normalize.Recipient(tx.To),
		State:    models.StateMined,
		Nonce:    nonce,
		Value:    normalize.WeiToEther(value),
		GasLimit: gas,
		GasPrice: gasPrice,
		Input:    tx.Input,
	}

	mined := &models.MinedDetails{
		BlockNumber: block,
		Index:       index,
		Status:      models.TxStatusSuccess,
	}
	if tx.IsError != "" && tx.IsError != "0" {
		mined.Status = models.TxStatusFail
	}
	if tx.GasUsed != "" {
		gasUsed, err := normalize.ParseUint64(tx.GasUsed)
		if err != nil {
			return nil, fmt.Errorf("gasUsed: %w", err)
		}
		mined.GasUsed = &gasUsed
		mined.GasCost = normalize.Ptr(normalize.GasCost(gasUsed, gasPrice))
	}
	if ts, err := normalize.ParseUint64(tx.TimeStamp); err == nil {
		mined.Timestamp = normalize.Ptr(time.Unix(int64(ts), 0).UTC())
	}

	errs := make(map[string]string)

	// 区块元数据：失败时只影响该区块的派生字段
	switch meta := batch.meta.Get(block); {
	case meta != nil:
		mined.BlockTxCount = normalize.Ptr(meta.TxCount)
		if meta.BaseFeePerGas != nil {
			mined.BlockBaseFee = normalize.Ptr(normalize.WeiToGwei(meta.BaseFeePerGas))
		}
		if mined.Timestamp == nil {
			mined.Timestamp = normalize.Ptr(meta.Time())
		}
		priority := normalize.PriorityFromBlockBase(gasPrice, meta.BaseFeePerGas)
		fees := normalize.DeriveFees(gasPrice, &priority)
		record.PriorityFee, record.BaseFee = fees.PriorityFee, fees.BaseFee
	case batch.errs[SourceBlockMeta] != nil:
		errs[SourceBlockMeta] = batch.errs[SourceBlockMeta].Error()
	case batch.meta != nil && batch.meta.Failed[block] != nil:
		errs[SourceBlockMeta] = batch.meta.Failed[block].Error()
	default:
		errs[SourceBlockMeta] = fmt.Sprintf("区块 %d 不存在", block)
	}

	if err := batch.errs[SourceRelayBlock]; err != nil {
		errs[SourceRelayBlock] = err.Error()
	} else if batch.relayBlocks != nil {
		mined.FromEdenProducer = normalize.Ptr(batch.relayBlocks[block])
	}

	if err := batch.errs[SourceRelayMatch]; err != nil {
		errs[SourceRelayMatch] = err.Error()
	} else {
		_, record.ViaPrivateRelay = batch.relayTxs[strings.ToLower(tx.Hash)]
	}

	if len(errs) > 0 {
		mined.EnrichmentErrors = errs
	}
	record.Mined = mined
	return record, nil
}

// degradedRecord 字段无法解析时的最小记录，只保留可信字段
func degradedRecord(tx *source.ExplorerTx, cause error) *models.TransactionRecord {
	mined := &models.MinedDetails{
		Status:           models.TxStatusSuccess,
		EnrichmentErrors: map[string]string{SourceParse: cause.Error()},
	}
	if block, err := normalize.ParseUint64(tx.BlockNumber); err == nil {
		mined.BlockNumber = block
	}
	if index, err := normalize.ParseUint64(tx.TransactionIndex); err == nil {
		mined.Index = index
	}
	if tx.IsError != "" && tx.IsError != "0" {
		mined.Status = models.TxStatusFail
	}
	return &models.TransactionRecord{
		Hash:  tx.Hash,
		From:  normalize.ChecksumAddress(tx.From),
		To:    normalize.Recipient(tx.To),
		State: models.StateMined,
		Input: tx.Input,
		Mined: mined,
	}
}
