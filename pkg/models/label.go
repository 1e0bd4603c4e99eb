package models

import "encoding/json"

// TxType 交易分类
type TxType string

const (
	TxTypeSlot        TxType = "slot"
	TxTypeStake       TxType = "stake"
	TxTypeBundle      TxType = "fb-bundle"
	TxTypePriorityFee TxType = "priority-fee"
)

// LabeledTransaction 带分类标签的交易，用于排序和展示
type LabeledTransaction struct {
	*TransactionRecord
	Position int    `json:"position"`
	Type     TxType `json:"type"`
	Category string `json:"category"`
	Color    string `json:"color,omitempty"`
}

// MarshalJSON 标签字段与交易字段平铺输出
func (l LabeledTransaction) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if l.TransactionRecord != nil {
		raw, err := json.Marshal(l.TransactionRecord)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}

	labels := struct {
		Position int    `json:"position"`
		Type     TxType `json:"type"`
		Category string `json:"category"`
		Color    string `json:"color,omitempty"`
	}{l.Position, l.Type, l.Category, l.Color}
	raw, err := json.Marshal(labels)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}
