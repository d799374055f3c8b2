// Package engine 实现信号的 fanout 执行：解析后的信号展开为每账户
// 一个执行单元，跨账户并行、同 key 串行，结果统一聚合。
package engine

import (
	"context"

	"trademux/internal/logger"
	"trademux/internal/signal"

	"golang.org/x/sync/errgroup"
)

// fanoutParallelism 限制单条信号的并发执行单元数。实盘单元实际还受
// 连接池容量约束，这里只防止订阅量大的策略瞬间打满数据库连接。
const fanoutParallelism = 8

// Engine 串起 解析→展开→执行→副作用→聚合 的主流程。
type Engine struct {
	resolver *Resolver
	router   *Router
	effects  *Effects
}

func New(resolver *Resolver, router *Router, effects *Effects) *Engine {
	return &Engine{resolver: resolver, router: router, effects: effects}
}

// HandleSignal 对一条已认证的信号执行完整 fanout，返回聚合报告。
// 单个账户的失败不会中断其余账户；只有订阅展开失败才返回错误。
func (e *Engine) HandleSignal(ctx context.Context, in *signal.Inbound) (*Report, error) {
	targets, err := e.resolver.Resolve(ctx, in.Strategy)
	if err != nil {
		return nil, err
	}
	logger.Infof("engine: trace=%s strategy=%d direction=%s symbol=%s targets=%d",
		in.TraceID, in.Strategy.ID, in.Direction, in.Symbol, len(targets))

	agg := NewAggregator(len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutParallelism)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			out := e.router.Execute(gctx, in, target)
			agg.Add(out)
			if e.effects != nil {
				e.effects.Dispatch(gctx, in, target, out)
			}
			return nil
		})
	}
	// 单元从不返回错误（失败已折叠进 Outcome），Wait 只用于汇合。
	_ = g.Wait()

	report := agg.Report()
	logger.Infof("engine: trace=%s done successful=%d failed=%d paper=%d live=%d",
		in.TraceID, report.Successful, report.Failed, report.PaperTrades, report.LiveTrades)
	return report, nil
}
