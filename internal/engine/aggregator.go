package engine

import (
	"sync"

	"trademux/internal/store/model"
)

// Outcome 是单个账户对一条信号的执行结果。
type Outcome struct {
	AccountID uint            `json:"account_id"`
	Mode      model.TradeMode `json:"mode"`
	Success   bool            `json:"success"`
	Action    string          `json:"action"`
	Closed    int             `json:"closed"`
	TradeID   string          `json:"trade_id,omitempty"`
	OrderID   string          `json:"order_id,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// 结果动作取值。
const (
	OutcomeOpened  = "opened"
	OutcomeClosed  = "closed"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Report 是一条信号的聚合执行报告。
type Report struct {
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	PaperTrades int       `json:"paper_trades"`
	LiveTrades  int       `json:"live_trades"`
	Results     []Outcome `json:"results"`
}

// Aggregator 并发收集各执行单元的结果。
type Aggregator struct {
	mu      sync.Mutex
	results []Outcome
}

func NewAggregator(capacity int) *Aggregator {
	return &Aggregator{results: make([]Outcome, 0, capacity)}
}

func (a *Aggregator) Add(out Outcome) {
	a.mu.Lock()
	a.results = append(a.results, out)
	a.mu.Unlock()
}

// Report 汇总为最终报告。成功计数按模式拆分到 paper/live。
func (a *Aggregator) Report() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	rep := &Report{
		Total:   len(a.results),
		Results: append([]Outcome(nil), a.results...),
	}
	for _, out := range rep.Results {
		if !out.Success {
			rep.Failed++
			continue
		}
		rep.Successful++
		if out.Mode == model.ModeLive {
			rep.LiveTrades++
		} else {
			rep.PaperTrades++
		}
	}
	return rep
}
