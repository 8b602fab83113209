package authz

import (
	"sync"
)

// CeremonyLock 进程级单飞锁：认证器仪式全系统同时只允许一个。
// 实现为容量 1 的 channel：Acquire 只做非阻塞尝试，绝不排队 —
// 拿不到就立刻失败，由调用方提示"稍后再试"。
//
// 锁从不作为全局变量暴露，依赖注入到 Broker。
type CeremonyLock struct {
	slot chan struct{}
}

func NewCeremonyLock() *CeremonyLock {
	return &CeremonyLock{slot: make(chan struct{}, 1)}
}

// TryAcquire 非阻塞获取。成功时返回一个 Guard，
// 失败 (已有仪式在进行) 返回 nil。
func (l *CeremonyLock) TryAcquire() *Guard {
	select {
	case l.slot <- struct{}{}:
		return &Guard{lock: l}
	default:
		return nil
	}
}

// Held 当前是否被持有 (仅用于测试与监控)
func (l *CeremonyLock) Held() bool {
	return len(l.slot) == 1
}

// Guard 锁的所有权凭证。
// Release 幂等：每条退出路径 (成功/失败/取消/组件卸载) 都可以安全调用，
// 重复调用是 no-op。任何一条路径漏掉释放都会让整个系统卡死，
// 所以释放统一走 defer guard.Release()。
type Guard struct {
	lock *CeremonyLock
	once sync.Once
}

func (g *Guard) Release() {
	g.once.Do(func() {
		<-g.lock.slot
	})
}
