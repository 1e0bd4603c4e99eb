// Package classifier 为交易打上优先级标签，并提供展示颜色和排序
package classifier

import (
	"fmt"

	"txlens/internal/config"
	"txlens/pkg/models"

	"github.com/shopspring/decimal"
)

// 颜色分类
const (
	CategorySlot        = "slot"
	CategoryStake       = "stake"
	CategoryPriorityFee = "priority-fee"
)

// Rules 标签规则
type Rules struct {
	StakeThreshold decimal.Decimal // ETH
	MaxStakerRank  int
}

// RulesFromConfig 从配置构造规则
func RulesFromConfig(cfg *config.ClassifierConfig) (Rules, error) {
	threshold, err := decimal.NewFromString(cfg.StakeThreshold)
	if err != nil {
		return Rules{}, fmt.Errorf("无效的质押阈值 %q: %w", cfg.StakeThreshold, err)
	}
	return Rules{StakeThreshold: threshold, MaxStakerRank: cfg.MaxStakerRank}, nil
}

// Classifier 交易标签和颜色
type Classifier struct {
	rules  Rules
	colors map[string]string
}

// NewClassifier 创建分类器
func NewClassifier(cfg *config.ClassifierConfig) (*Classifier, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig().Classifier
	}
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	colors := make(map[string]string, len(cfg.Colors))
	for k, v := range cfg.Colors {
		colors[k] = v
	}
	return &Classifier{rules: rules, colors: colors}, nil
}

// Classify 确定交易类型，按顺序第一个匹配的规则生效：
// 接收方是委托 slot、发送方是排名靠前且质押达到阈值的质押者、交易属于 bundle、其余为优先费交易。
func Classify(record *models.TransactionRecord, rules Rules) models.TxType {
	if record == nil || record.Mined == nil {
		return models.TxTypePriorityFee
	}
	mined := record.Mined

	if mined.ToSlot != nil {
		return models.TxTypeSlot
	}
	if mined.SenderRank != nil && mined.SenderStake != nil &&
		*mined.SenderRank <= rules.MaxStakerRank &&
		mined.SenderStake.GreaterThanOrEqual(rules.StakeThreshold) {
		return models.TxTypeStake
	}
	if mined.BundleIndex != nil {
		return models.TxTypeBundle
	}
	return models.TxTypePriorityFee
}

// Category 颜色分类：slot/stake 原样返回，bundle 按序号奇偶交替，其余为 priority-fee
func Category(labeled *models.LabeledTransaction) string {
	switch labeled.Type {
	case models.TxTypeSlot:
		return CategorySlot
	case models.TxTypeStake:
		return CategoryStake
	case models.TxTypeBundle:
		idx := 0
		if labeled.TransactionRecord != nil && labeled.Mined != nil && labeled.Mined.BundleIndex != nil {
			idx = *labeled.Mined.BundleIndex
		}
		if idx < 0 {
			idx = -idx
		}
		return fmt.Sprintf("bundle-%d", idx%2)
	default:
		return CategoryPriorityFee
	}
}

// Color 分类对应的颜色，未配置时返回空
func (c *Classifier) Color(category string) string {
	return c.colors[category]
}

// Rules 返回当前规则
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Label 为一组交易打标签，已上链交易的位置为区块内序号，其余为列表序号
func (c *Classifier) Label(records []*models.TransactionRecord) []*models.LabeledTransaction {
	labeled := make([]*models.LabeledTransaction, 0, len(records))
	for i, record := range records {
		if record == nil {
			continue
		}
		lt := &models.LabeledTransaction{
			TransactionRecord: record,
			Position:          i,
			Type:              Classify(record, c.rules),
		}
		if record.Mined != nil {
			lt.Position = int(record.Mined.Index)
		}
		lt.Category = Category(lt)
		lt.Color = c.Color(lt.Category)
		labeled = append(labeled, lt)
	}
	return labeled
}
