package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"txlens/internal/config"
	"txlens/internal/errors"
	"txlens/internal/metrics"
	"txlens/internal/normalize"
	"txlens/internal/source"
	"txlens/pkg/models"

	"github.com/sirupsen/logrus"
)

// 补充数据分支名，同时作为 EnrichmentErrors 的键
const (
	BranchStake      = "stake"
	BranchRelayBlock = "relay_block"
	BranchBundles    = "bundles"
	BranchDelegates  = "slot_delegates"
	BranchBlockMeta  = "block_metadata"
	BranchCalldata   = "calldata"
)

// branch 并发执行的一个补充数据查询
type branch struct {
	name string
	run  func(ctx context.Context) error
}

// settle 并发执行所有分支并等待全部结束，返回 分支名 -> 错误
//
// 单个分支的 panic 被恢复为该分支的错误。
func settle(ctx context.Context, branches []branch) map[string]error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = make(map[string]error)
	)

	for _, b := range branches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runBranch(ctx, b); err != nil {
				mu.Lock()
				errs[b.name] = err
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errs
}

func runBranch(ctx context.Context, b branch) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("分支 %s panic: %v", b.name, p)
		}
	}()
	return b.run(ctx)
}

// enrichment 各分支的结果槽位，每个分支只写自己的槽位
type enrichment struct {
	stake      *source.StakeInfo
	relayBlock *bool
	bundles    source.BundleIndex
	delegates  map[string]int
	blockMeta  *models.BlockMeta
	decoded    *models.DecodedCall
}

// enrich 为已上链交易查询六项补充数据并写入记录
func (r *Resolver) enrich(ctx context.Context, log *logrus.Entry, record *models.TransactionRecord, tx *source.RawTransaction) {
	block := record.Mined.BlockNumber
	var res enrichment

	branches := []branch{
		{name: BranchStake, run: func(ctx context.Context) error {
			if r.src.Stake == nil {
				return nil
			}
			info, err := r.src.Stake.Stake(ctx, record.From, &block)
			if err != nil {
				return err
			}
			res.stake = info
			return nil
		}},
		{name: BranchRelayBlock, run: func(ctx context.Context) error {
			if r.src.Membership == nil {
				return nil
			}
			set, err := r.src.Membership.RelayBlocks(ctx, []uint64{block})
			if err != nil {
				return err
			}
			produced := set[block]
			res.relayBlock = &produced
			return nil
		}},
		{name: BranchBundles, run: func(ctx context.Context) error {
			if r.src.Bundles == nil {
				return nil
			}
			index, err := r.src.Bundles.BundlesInBlock(ctx, block)
			if err != nil {
				return err
			}
			res.bundles = index
			return nil
		}},
		{name: BranchDelegates, run: func(ctx context.Context) error {
			if r.src.Delegation == nil {
				return nil
			}
			// 委托关系取出块前一个区块的快照
			at := block
			if at > 0 {
				at--
			}
			delegates, err := r.src.Delegation.SlotDelegates(ctx, &at)
			if err != nil {
				return err
			}
			res.delegates = delegates
			return nil
		}},
		{name: BranchBlockMeta, run: func(ctx context.Context) error {
			batch, err := r.src.Node.BlockMetadata(ctx, []uint64{block})
			if err != nil {
				return err
			}
			if batch != nil && batch.Failed[block] != nil {
				return batch.Failed[block]
			}
			meta := batch.Get(block)
			if meta == nil {
				return fmt.Errorf("区块 %d 不存在", block)
			}
			res.blockMeta = meta
			return nil
		}},
		{name: BranchCalldata, run: func(ctx context.Context) error {
			if r.src.Decoder == nil {
				return nil
			}
			call, err := r.src.Decoder.Decode(ctx, tx.To, record.Input)
			if err != nil {
				return err
			}
			res.decoded = call
			return nil
		}},
	}

	errs := settle(ctx, branches)
	mode := r.config.EnrichmentMode

	if len(errs) > 0 {
		for _, name := range sortedKeys(errs) {
			metrics.IncEnrichmentFailure(name, mode)
			log.WithField("branch", name).Warnf("补充数据获取失败: %v", errors.EnrichmentFailure(name, errs[name]))
		}

		if mode == config.EnrichmentLegacy {
			// 保留回执字段，整条记录视为仍在等待
			record.Pending = true
			return
		}

		record.Mined.EnrichmentErrors = make(map[string]string, len(errs))
		for name, err := range errs {
			record.Mined.EnrichmentErrors[name] = err.Error()
		}
	}

	applyEnrichment(record, &res)
	record.Pending = false
}

// applyEnrichment 将各分支结果独立写入记录，失败分支的槽位为空
func applyEnrichment(record *models.TransactionRecord, res *enrichment) {
	mined := record.Mined

	if mined.GasUsed != nil {
		mined.GasCost = normalize.Ptr(normalize.GasCost(*mined.GasUsed, record.GasPrice))
	}

	if res.stake != nil {
		if res.stake.Staked != nil {
			mined.SenderStake = normalize.Ptr(normalize.WeiToEther(res.stake.Staked))
		}
		if res.stake.Rank != nil {
			mined.SenderRank = normalize.Ptr(*res.stake.Rank)
		}
	}

	if res.relayBlock != nil {
		mined.FromEdenProducer = normalize.Ptr(*res.relayBlock)
	}

	if bundle, ok := res.bundles[strings.ToLower(record.Hash)]; ok {
		mined.BundleIndex = normalize.Ptr(bundle.BundleIndex)
		if bundle.MinerTip != nil {
			mined.MinerTip = normalize.WeiToEther(bundle.MinerTip)
		}
	}

	if slot, ok := res.delegates[strings.ToLower(record.To)]; ok {
		mined.ToSlot = normalize.Ptr(slot)
	}

	if meta := res.blockMeta; meta != nil {
		mined.BlockTxCount = normalize.Ptr(meta.TxCount)
		mined.Timestamp = normalize.Ptr(meta.Time())
		if meta.BaseFeePerGas != nil {
			mined.BlockBaseFee = normalize.Ptr(normalize.WeiToGwei(meta.BaseFeePerGas))
		}
	}

	if call := res.decoded; call != nil {
		mined.DecodedInput = call
		if call.ContractName != "" {
			mined.ContractName = normalize.Ptr(call.ContractName)
		}
	}
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
