package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/store"
	"github.com/JoeShih716/go-sls-ledger/pkg/wal"
)

// applyRequest 交易請求包裝 channel，讓 ApplyAtomic 可以等待結果
type applyRequest struct {
	ctx    context.Context
	ops    []store.Operation
	result chan error
}

// SequencedStore 單一寫入者 (LMAX 風格) 的 TransactionalStore
// 所有寫入都經過輸送帶交給 run loop 依序處理，讀取透過 RWMutex 與寫入隔離
type SequencedStore struct {
	mu    sync.RWMutex
	table *table
	wal   *wal.WAL
	// 輸送帶 負責接收交易
	requests chan *applyRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	// gate 保護 closed: 送入輸送帶時持有讀鎖，關閉入口時持有寫鎖
	gate   sync.RWMutex
	closed bool
	// run loop 結束後關閉
	done chan struct{}
}

// NewSequencedStore 建立一個新的 SequencedStore，需呼叫 Start 後才能寫入
//
// 參數:
//
//	w: Write-Ahead Log 實例，nil 代表不持久化
//	bufferSize: 輸送帶容量
func NewSequencedStore(w *wal.WAL, bufferSize int) (*SequencedStore, error) {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	s := &SequencedStore{
		table:    newTable(),
		wal:      w,
		requests: make(chan *applyRequest, bufferSize),
		done:     make(chan struct{}),
		requestPool: sync.Pool{
			New: func() any {
				return &applyRequest{result: make(chan error, 1)}
			},
		},
	}
	// 在啟動前先恢復資料
	if _, err := s.table.recoverFromWAL(w); err != nil {
		return nil, fmt.Errorf("recover from wal: %w", err)
	}
	return s, nil
}

// Start 啟動核心寫入迴圈 (非同步)
// ctx 結束時關閉入口，處理完已送入的請求後退出，之後的寫入回傳 ErrUnavailable
func (s *SequencedStore) Start(ctx context.Context) {
	go s.run(ctx)
}

// Done run loop 結束後關閉，之後才能安全關閉 WAL
func (s *SequencedStore) Done() <-chan struct{} {
	return s.done
}

func (s *SequencedStore) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case req := <-s.requests:
			s.process(req)
		}
	}
}

// shutdown 關閉入口，並處理完輸送帶上剩下的交易
// 等待寫鎖期間持續消化請求，讓卡在滿載輸送帶上的呼叫端可以送完並釋放讀鎖
func (s *SequencedStore) shutdown() {
	gateClosed := make(chan struct{})
	go func() {
		s.gate.Lock()
		s.closed = true
		s.gate.Unlock()
		close(gateClosed)
	}()
	for {
		select {
		case req := <-s.requests:
			s.process(req)
		case <-gateClosed:
			s.drain()
			return
		}
	}
}

func (s *SequencedStore) drain() {
	for {
		select {
		case req := <-s.requests:
			s.process(req)
		default:
			return
		}
	}
}

// process 處理單筆請求並回傳結果
// 只在寫入前檢查呼叫端是否已放棄，一旦開始寫 WAL 就提交並回報真實結果
func (s *SequencedStore) process(req *applyRequest) {
	if err := req.ctx.Err(); err != nil {
		req.result <- fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		return
	}

	s.mu.RLock()
	next, err := s.table.prepare(req.ops)
	s.mu.RUnlock()
	if err != nil {
		req.result <- err
		return
	}

	// 1. 寫入 WAL (Critical Path)
	if s.wal != nil {
		if err := s.wal.Write(walRecord{Items: next}); err != nil {
			req.result <- fmt.Errorf("%w: wal write: %w", store.ErrUnavailable, err)
			return
		}
	}

	// 2. 更新狀態
	s.mu.Lock()
	s.table.commit(next)
	s.mu.Unlock()

	req.result <- nil
}

// ApplyAtomic 放入輸送帶並等待結果
// ApplyAtomic(等待) -> Channel -> Run Loop -> WAL -> Map Update -> Result Channel
//
// ctx 只能在進入輸送帶前中止請求；進入後一定等待 run loop 的結果，
// 回傳 ErrUnavailable 時保證沒有寫入
func (s *SequencedStore) ApplyAtomic(ctx context.Context, ops []store.Operation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	if err := store.ValidateOperations(ops); err != nil {
		return err
	}

	req := s.requestPool.Get().(*applyRequest)
	req.ctx = ctx
	req.ops = ops

	if err := s.enqueue(ctx, req); err != nil {
		s.release(req)
		return err
	}

	// run loop 保證會處理已送入的請求 (包含關閉時的 drain)
	err := <-req.result
	s.release(req)
	return err
}

// enqueue 在入口開啟時把請求送上輸送帶
func (s *SequencedStore) enqueue(ctx context.Context, req *applyRequest) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: sequencer stopped", store.ErrUnavailable)
	}
	select {
	case s.requests <- req:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", store.ErrUnavailable, ctx.Err())
	}
}

func (s *SequencedStore) release(req *applyRequest) {
	req.ctx = nil
	req.ops = nil
	s.requestPool.Put(req)
}

// Get 依主鍵讀取
func (s *SequencedStore) Get(ctx context.Context, key store.Key) (*store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.get(key)
}

// Query 讀取同一 partition 內的範圍資料
func (s *SequencedStore) Query(ctx context.Context, pk string, skPrefix string) ([]store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.query(pk, skPrefix), nil
}

var _ store.TransactionalStore = (*SequencedStore)(nil)
