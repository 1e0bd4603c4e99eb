// Package resolver 将公共节点、私有中继与回执三个主数据源合并为一条交易记录，
// 并对已上链交易做并发的补充数据查询。
package resolver

import (
	"context"
	"fmt"
	"time"

	"txlens/internal/config"
	"txlens/internal/errors"
	"txlens/internal/logging"
	"txlens/internal/metrics"
	"txlens/internal/normalize"
	"txlens/internal/source"
	"txlens/pkg/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Sources 解析所需的数据源
//
// Node 与 Relay 为必需；其余数据源为nil时对应的补充字段保持为空。
type Sources struct {
	Node       source.NodeSource
	Relay      source.RelaySource
	Membership source.MembershipSource
	Stake      source.StakeSource
	Delegation source.DelegationSource
	Bundles    source.BundleSource
	Explorer   source.ExplorerSource
	Decoder    source.CalldataDecoder
}

// Resolver 单笔交易解析器，无状态，可并发使用
type Resolver struct {
	src    Sources
	config *config.ResolverConfig
	logger *logrus.Logger
}

// NewResolver 创建解析器
func NewResolver(src Sources, cfg *config.ResolverConfig, logger *logrus.Logger) (*Resolver, error) {
	if src.Node == nil {
		return nil, errors.ConfigFailure("缺少节点数据源")
	}
	if src.Relay == nil {
		return nil, errors.ConfigFailure("缺少中继数据源")
	}
	if cfg == nil {
		cfg = config.GetDefaultConfig().Resolver
	}
	return &Resolver{src: src, config: cfg, logger: logger}, nil
}

// Sources 返回解析器使用的数据源
func (r *Resolver) Sources() Sources {
	return r.src
}

// primaryResult 三个主数据源的查询结果
type primaryResult struct {
	tx      *source.RawTransaction
	receipt *source.RawReceipt
	relay   *source.RelayRecord
}

// ResolveTransaction 解析交易哈希
//
// 未找到时返回状态为 not-found 的记录且 error 为nil；任一主数据源失败时返回错误，不返回部分记录。
func (r *Resolver) ResolveTransaction(ctx context.Context, hash string) (*models.TransactionRecord, error) {
	started := time.Now()
	log := logging.NewTxLogger(r.logger, hash)

	primary, err := r.fetchPrimary(ctx, hash)
	if err != nil {
		metrics.ObserveResolution("transaction", "error", started)
		return nil, err
	}

	record, err := r.classify(hash, primary)
	if err != nil {
		metrics.ObserveResolution("transaction", "error", started)
		return nil, err
	}

	switch record.State {
	case models.StateNotFound:
		log.Debug("所有数据源均未找到交易")
	case models.StateMined:
		r.enrich(ctx, log, record, primary.tx)
	}

	metrics.ObserveResolution("transaction", string(record.State), started)
	log.WithField("state", record.State).Debug("交易解析完成")
	return record, nil
}

// fetchPrimary 并发查询交易对象、回执和中继记录，全部结束后返回
func (r *Resolver) fetchPrimary(ctx context.Context, hash string) (*primaryResult, error) {
	var res primaryResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tx, err := r.src.Node.TransactionByHash(gctx, hash)
		if err != nil {
			return errors.PrimarySourceFailure("node.transaction", err).WithTxHash(hash)
		}
		res.tx = tx
		return nil
	})
	g.Go(func() error {
		receipt, err := r.src.Node.TransactionReceipt(gctx, hash)
		if err != nil {
			return errors.PrimarySourceFailure("node.receipt", err).WithTxHash(hash)
		}
		res.receipt = receipt
		return nil
	})
	g.Go(func() error {
		record, err := r.src.Relay.RelayTransaction(gctx, hash)
		if err != nil {
			return errors.PrimarySourceFailure("relay.transaction", err).WithTxHash(hash)
		}
		res.relay = record
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &res, nil
}

// classify 按优先级确定生命周期状态：私有待打包 > 公共待打包 > 已上链 > 未找到
func (r *Resolver) classify(hash string, p *primaryResult) (*models.TransactionRecord, error) {
	var (
		record *models.TransactionRecord
		err    error
	)

	switch {
	case p.relay != nil && p.relay.IsPending():
		raw := source.RawTransaction(*p.relay)
		record, err = recordFromRequest(hash, &raw, models.StatePendingPrivate)
	case p.tx != nil && p.receipt == nil:
		record, err = recordFromRequest(hash, p.tx, models.StatePendingPublic)
	case p.receipt != nil:
		if p.tx == nil {
			return nil, errors.InconsistentPrimary(hash)
		}
		record, err = recordFromRequest(hash, p.tx, models.StateMined)
		if err == nil {
			record.Mined, err = minedFromReceipt(p.tx, p.receipt)
		}
	default:
		return models.NotFoundRecord(hash), nil
	}

	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeData, errors.SeverityMedium,
			errors.CodeInvalidData, "交易字段解析失败").WithTxHash(hash)
	}

	record.ViaPrivateRelay = p.relay != nil
	return record, nil
}

// recordFromRequest 由交易对象（或中继记录）构造基础字段
func recordFromRequest(hash string, raw *source.RawTransaction, state models.LifecycleState) (*models.TransactionRecord, error) {
	nonce, err := raw.Nonce.Uint64()
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	value, err := raw.Value.Big()
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	gas, err := raw.Gas.Uint64()
	if err != nil {
		return nil, fmt.Errorf("gas: %w", err)
	}
	gasPriceWei, err := raw.GasPrice.Big()
	if err != nil {
		return nil, fmt.Errorf("gasPrice: %w", err)
	}
	priorityWei, err := raw.MaxPriorityFeePerGas.OptionalBig()
	if err != nil {
		return nil, fmt.Errorf("maxPriorityFeePerGas: %w", err)
	}

	gasPrice := normalize.WeiToGwei(gasPriceWei)
	var priority *decimal.Decimal
	if priorityWei != nil {
		priority = normalize.Ptr(normalize.WeiToGwei(priorityWei))
	}
	fees := normalize.DeriveFees(gasPrice, priority)

	hashOut := hash
	if raw.Hash != "" {
		hashOut = raw.Hash
	}

	return &models.TransactionRecord{
		Hash:        hashOut,
		From:        normalize.ChecksumAddress(raw.From),
		To:          normalize.Recipient(raw.To),
		State:       state,
		Pending:     state.IsPending(),
		Nonce:       nonce,
		Value:       normalize.WeiToEther(value),
		GasLimit:    gas,
		GasPrice:    gasPrice,
		Input:       raw.Input,
		PriorityFee: fees.PriorityFee,
		BaseFee:     fees.BaseFee,
	}, nil
}

// minedFromReceipt 由回执构造上链字段，补充数据字段全部为空
func minedFromReceipt(tx *source.RawTransaction, receipt *source.RawReceipt) (*models.MinedDetails, error) {
	blockQty := receipt.BlockNumber
	if blockQty.IsEmpty() {
		blockQty = tx.BlockNumber
	}
	block, err := blockQty.Uint64()
	if err != nil {
		return nil, fmt.Errorf("blockNumber: %w", err)
	}

	indexQty := receipt.TransactionIndex
	if indexQty.IsEmpty() {
		indexQty = tx.TransactionIndex
	}
	var index uint64
	if !indexQty.IsEmpty() {
		if index, err = indexQty.Uint64(); err != nil {
			return nil, fmt.Errorf("transactionIndex: %w", err)
		}
	}

	mined := &models.MinedDetails{
		BlockNumber: block,
		Index:       index,
		Status:      models.TxStatusSuccess,
	}

	// 拜占庭升级前的回执没有 status 字段
	if !receipt.Status.IsEmpty() {
		status, err := receipt.Status.Uint64()
		if err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
		if status != 1 {
			mined.Status = models.TxStatusFail
		}
	}

	if !receipt.GasUsed.IsEmpty() {
		gasUsed, err := receipt.GasUsed.Uint64()
		if err != nil {
			return nil, fmt.Errorf("gasUsed: %w", err)
		}
		mined.GasUsed = &gasUsed
	}

	if len(receipt.Logs) > 0 {
		mined.Logs = make([]*models.TransactionLog, 0, len(receipt.Logs))
		for _, raw := range receipt.Logs {
			log := &models.TransactionLog{}
			log.FromEthereumLog(raw.ToEthereumLog())
			mined.Logs = append(mined.Logs, log)
		}
	}

	return mined, nil
}
