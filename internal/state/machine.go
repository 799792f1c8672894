package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/langchou/carledger/internal/models"
)

// 充电记录状态常量
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StatePriced = "priced"
)

// 事件常量
const (
	EventClose = "close"
	EventPrice = "price"
)

// StateOf 根据字段推断充电记录所处状态
func StateOf(s *models.ChargingSession) string {
	switch {
	case !s.Ended():
		return StateOpen
	case s.NeedsPricing():
		return StateClosed
	default:
		return StatePriced
	}
}

// SessionMachine 充电记录生命周期状态机
// open (stop_at 为空) -> closed -> priced
type SessionMachine struct {
	mu       sync.Mutex
	session  *models.ChargingSession
	fsm      *fsm.FSM
	onChange func(s *models.ChargingSession, from, to string)
}

// NewSessionMachine 创建状态机，初始状态由记录推断
func NewSessionMachine(s *models.ChargingSession, onChange func(s *models.ChargingSession, from, to string)) *SessionMachine {
	m := &SessionMachine{
		session:  s,
		onChange: onChange,
	}

	m.fsm = fsm.NewFSM(
		StateOf(s),
		fsm.Events{
			{Name: EventClose, Src: []string{StateOpen}, Dst: StateClosed},
			// 已计费的记录可以重新计费
			{Name: EventPrice, Src: []string{StateClosed, StatePriced}, Dst: StatePriced},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onChange != nil && e.Src != e.Dst {
					m.onChange(m.session, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 当前状态
func (m *SessionMachine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// Can 检查事件是否可以触发
func (m *SessionMachine) Can(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Can(event)
}

// Trigger 触发事件
func (m *SessionMachine) Trigger(ctx context.Context, event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(ctx, event); err != nil {
		// 自环转换 (priced -> priced) 返回 NoTransitionError，不算失败
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}
