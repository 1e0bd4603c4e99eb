package models

import "github.com/shopspring/decimal"

// AccountOverview 账户概览
type AccountOverview struct {
	Address      string               `json:"address"`                 // 校验和地址
	SlotDelegate *int                 `json:"slot_delegate,omitempty"` // 被委托的slot编号
	Staked       *decimal.Decimal     `json:"staked,omitempty"`        // ETH单位
	StakerRank   *int                 `json:"staker_rank,omitempty"`
	TxCount      uint64               `json:"tx_count"`
	Transactions []*TransactionRecord `json:"transactions"` // 保持数据源返回顺序

	// EnrichmentErrors 账户级补充数据失败原因
	EnrichmentErrors map[string]string `json:"enrichment_errors,omitempty"`
}

// DecodedCall 解码后的调用数据
type DecodedCall struct {
	ContractName string       `json:"contract_name,omitempty"`
	Method       string       `json:"method"`
	Signature    string       `json:"signature"`
	Args         []DecodedArg `json:"args,omitempty"`
}

// DecodedArg 解码后的参数
type DecodedArg struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}
