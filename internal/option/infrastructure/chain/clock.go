package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// BlockClock 由墙钟推算区块高度：GenesisHeight + (now - GenesisTime) / BlockInterval
type BlockClock struct {
	genesisHeight uint64
	genesisTime   time.Time
	interval      time.Duration
	now           func() time.Time
}

// NewBlockClock 创建区块时钟
func NewBlockClock(genesisHeight uint64, genesisTime time.Time, interval time.Duration) (*BlockClock, error) {
	if interval <= 0 {
		return nil, errors.New("block interval must be positive")
	}
	return &BlockClock{
		genesisHeight: genesisHeight,
		genesisTime:   genesisTime,
		interval:      interval,
		now:           time.Now,
	}, nil
}

// CurrentHeight 创世时间之前始终返回创世高度
func (c *BlockClock) CurrentHeight(ctx context.Context) (uint64, error) {
	elapsed := c.now().Sub(c.genesisTime)
	if elapsed < 0 {
		return c.genesisHeight, nil
	}
	return c.genesisHeight + uint64(elapsed/c.interval), nil
}

// FixedClock 手动推进的时钟，测试与回放使用
type FixedClock struct {
	mu     sync.Mutex
	height uint64
}

func NewFixedClock(height uint64) *FixedClock {
	return &FixedClock{height: height}
}

func (c *FixedClock) CurrentHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *FixedClock) Set(height uint64) {
	c.mu.Lock()
	c.height = height
	c.mu.Unlock()
}

func (c *FixedClock) Advance(blocks uint64) {
	c.mu.Lock()
	c.height += blocks
	c.mu.Unlock()
}

var (
	_ domain.Clock = (*BlockClock)(nil)
	_ domain.Clock = (*FixedClock)(nil)
)
