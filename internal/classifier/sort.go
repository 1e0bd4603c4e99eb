package classifier

import (
	"fmt"
	"sort"
	"strings"

	"txlens/pkg/models"

	"github.com/shopspring/decimal"
)

// 排序方向
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// 排序字段
const (
	SortPosition    = "position"
	SortHash        = "hash"
	SortFrom        = "from"
	SortTo          = "to"
	SortNonce       = "nonce"
	SortPriorityFee = "priorityFee"
	SortType        = "type"
	SortToSlot      = "toSlot"
	SortBundleIndex = "bundleIndex"
	SortStake       = "senderStake"
)

// sortKeys 字段取值，缺失时返回 false
var sortKeys = map[string]func(*models.LabeledTransaction) (interface{}, bool){
	SortPosition: func(t *models.LabeledTransaction) (interface{}, bool) { return int64(t.Position), true },
	SortHash:     func(t *models.LabeledTransaction) (interface{}, bool) { return strings.ToLower(t.Hash), true },
	SortFrom:     func(t *models.LabeledTransaction) (interface{}, bool) { return strings.ToLower(t.From), true },
	SortTo:       func(t *models.LabeledTransaction) (interface{}, bool) { return strings.ToLower(t.To), true },
	SortNonce:    func(t *models.LabeledTransaction) (interface{}, bool) { return int64(t.Nonce), true },
	SortType:     func(t *models.LabeledTransaction) (interface{}, bool) { return string(t.Type), true },
	SortPriorityFee: func(t *models.LabeledTransaction) (interface{}, bool) {
		if t.PriorityFee == nil {
			return nil, false
		}
		return *t.PriorityFee, true
	},
	SortToSlot: func(t *models.LabeledTransaction) (interface{}, bool) {
		if t.Mined == nil || t.Mined.ToSlot == nil {
			return nil, false
		}
		return int64(*t.Mined.ToSlot), true
	},
	SortBundleIndex: func(t *models.LabeledTransaction) (interface{}, bool) {
		if t.Mined == nil || t.Mined.BundleIndex == nil {
			return nil, false
		}
		return int64(*t.Mined.BundleIndex), true
	},
	SortStake: func(t *models.LabeledTransaction) (interface{}, bool) {
		if t.Mined == nil || t.Mined.SenderStake == nil {
			return nil, false
		}
		return *t.Mined.SenderStake, true
	},
}

// SortKeys 支持的排序字段
func SortKeys() []string {
	keys := make([]string, 0, len(sortKeys))
	for k := range sortKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sort 按字段稳定排序，缺失值始终排在最后
func Sort(labeled []*models.LabeledTransaction, key, order string) error {
	extract, ok := sortKeys[key]
	if !ok {
		return fmt.Errorf("不支持的排序字段: %s", key)
	}
	desc := false
	switch order {
	case "", OrderAsc:
	case OrderDesc:
		desc = true
	default:
		return fmt.Errorf("不支持的排序方向: %s", order)
	}

	sort.SliceStable(labeled, func(i, j int) bool {
		a, okA := extract(labeled[i])
		b, okB := extract(labeled[j])
		if !okA || !okB {
			return okA && !okB
		}
		c := compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return nil
}

func compare(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv := b.(int64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		return strings.Compare(av, b.(string))
	case decimal.Decimal:
		return av.Cmp(b.(decimal.Decimal))
	}
	return 0
}
