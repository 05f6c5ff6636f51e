package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/sjmatta/poolstall/types"
)

// StreamChunk 是上游产出的一个有序数据块。
// 异步消费时 Err 非空表示该流以错误终止，之后不会再有数据块。
type StreamChunk struct {
	Index int
	Data  []byte
	Err   *types.Error
}

// Generator 按固定节奏产出有限的 chunk 序列。
// 序列是确定性的：Chunks 个数据块，每块之后等待 Delay。
type Generator struct {
	Chunks int
	Delay  time.Duration
}

// Payload 返回第 i 块（从 1 开始）的内容。
func (g Generator) Payload(i int) []byte {
	return []byte(fmt.Sprintf(
		"This is chunk %d of %d from the mock LLM service. This simulates a slow streaming completion.",
		i, g.Chunks,
	))
}

// Emit 依次产出所有 chunk，每块之后等待 Delay。
// ctx 取消时在一个间隔之内停止产出并返回 ctx.Err()；
// emit 返回错误时立即终止。
func (g Generator) Emit(ctx context.Context, emit func(chunk StreamChunk) error) error {
	timer := time.NewTimer(g.Delay)
	defer timer.Stop()

	for i := 1; i <= g.Chunks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := emit(StreamChunk{Index: i, Data: g.Payload(i)}); err != nil {
			return err
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(g.Delay)

		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
