package service

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// GatewayDropMessage 模拟网关不可达时返回给调用方的信息
const GatewayDropMessage = "Network Drop: Edge gateway unreachable. Retrying locally."

// 默认故障注入参数
const (
	DefaultFaultRate  = 0.2
	DefaultFaultDelay = 3 * time.Second
)

// FaultInjector 模拟不稳定的边缘链路
// Rate 为触发概率（<=0 关闭），Delay 为报告故障前的延迟，Rand 可在测试中注入
type FaultInjector struct {
	Rate  float64
	Delay time.Duration
	Rand  func() float64
}

// NewFaultInjector 创建故障注入器，使用带锁的随机源
func NewFaultInjector(rate float64, delay time.Duration) *FaultInjector {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	var mu sync.Mutex
	return &FaultInjector{
		Rate:  rate,
		Delay: delay,
		Rand: func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		},
	}
}

// Maybe 按概率注入故障；触发时等待 Delay 后返回 TransientError
// 等待期间 ctx 取消则直接返回 ctx.Err()
func (f *FaultInjector) Maybe(ctx context.Context) error {
	if f == nil || f.Rate <= 0 || f.Rand == nil {
		return nil
	}
	if f.Rand() >= f.Rate {
		return nil
	}

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &TransientError{Message: GatewayDropMessage}
}
