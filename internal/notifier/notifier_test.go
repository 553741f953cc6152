package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"infinity-go/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchCollector 收集投递给订阅者的批次。
type batchCollector struct {
	mu      sync.Mutex
	batches [][]Message
}

func (c *batchCollector) handler(batch []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]Message, len(batch))
	copy(copied, batch)
	c.batches = append(c.batches, copied)
}

func (c *batchCollector) snapshot() [][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]Message, len(c.batches))
	copy(out, c.batches)
	return out
}

func (c *batchCollector) waitForBatches(t *testing.T, n int) [][]Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("等待 %d 个批次超时, 实际收到 %d", n, len(c.snapshot()))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func msg(channel string, ts int64) Message {
	return Message{Channel: channel, Kind: KindModelData, Payload: map[string]interface{}{"t": ts}, Timestamp: ts}
}

func TestEventsWithinWindowAreBatched(t *testing.T) {
	n := New("origin-a", 50)
	defer n.Close()

	col := &batchCollector{}
	n.Subscribe(ModelChannel("m-1"), false, col.handler)

	ctx := context.Background()
	n.Publish(ctx, msg(ModelChannel("m-1"), 3))
	n.Publish(ctx, msg(ModelChannel("m-1"), 1))
	n.Publish(ctx, msg(ModelChannel("m-1"), 2))

	batches := col.waitForBatches(t, 1)
	require.Len(t, batches, 1, "窗口内的事件应合并为一个批次")
	require.Len(t, batches[0], 3)

	// 批次内按时间戳升序
	assert.Equal(t, int64(1), batches[0][0].Timestamp)
	assert.Equal(t, int64(2), batches[0][1].Timestamp)
	assert.Equal(t, int64(3), batches[0][2].Timestamp)
}

func TestWindowReopensAfterFlush(t *testing.T) {
	n := New("origin-a", 30)
	defer n.Close()

	col := &batchCollector{}
	n.Subscribe(ModelChannel("m-1"), false, col.handler)

	ctx := context.Background()
	n.Publish(ctx, msg(ModelChannel("m-1"), 1))
	col.waitForBatches(t, 1)

	// 窗口投递后回到空闲态，下一条事件开启新窗口
	n.Publish(ctx, msg(ModelChannel("m-1"), 2))
	batches := col.waitForBatches(t, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 1)
}

func TestImmediateModeDeliversPerEvent(t *testing.T) {
	n := New("origin-a", 1000)
	defer n.Close()

	col := &batchCollector{}
	n.Subscribe(ModelChannel("m-1"), true, col.handler)

	ctx := context.Background()
	n.Publish(ctx, msg(ModelChannel("m-1"), 1))
	n.Publish(ctx, msg(ModelChannel("m-1"), 2))

	batches := col.waitForBatches(t, 2)
	assert.Len(t, batches[0], 1)
	assert.Len(t, batches[1], 1)
}

func TestUnsubscribeFlushesPending(t *testing.T) {
	// 窗口远大于测试时长，未注销就不会投递
	n := New("origin-a", 60_000)
	defer n.Close()

	col := &batchCollector{}
	sub := n.Subscribe(ModelChannel("m-1"), false, col.handler)

	n.Publish(context.Background(), msg(ModelChannel("m-1"), 1))
	assert.Empty(t, col.snapshot())

	n.Unsubscribe(sub)
	batches := col.snapshot()
	require.Len(t, batches, 1, "注销订阅应投递攒批中的事件")
	assert.Len(t, batches[0], 1)

	// 注销后的事件不再投递
	n.Publish(context.Background(), msg(ModelChannel("m-1"), 2))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, col.snapshot(), 1)
}

func TestChannelsAreIsolated(t *testing.T) {
	n := New("origin-a", 20)
	defer n.Close()

	colA := &batchCollector{}
	colB := &batchCollector{}
	n.Subscribe(ModelChannel("m-1"), false, colA.handler)
	n.Subscribe(ViewChannel("v-1"), false, colB.handler)

	n.Publish(context.Background(), msg(ModelChannel("m-1"), 1))

	colA.waitForBatches(t, 1)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, colB.snapshot(), "其他频道的订阅不应收到事件")
}

func TestHandleEventDropsOwnEcho(t *testing.T) {
	n := New("origin-a", 20)
	defer n.Close()

	col := &batchCollector{}
	n.Subscribe(ModelChannel("m-1"), false, col.handler)

	payload, _ := json.Marshal(map[string]interface{}{"record_id": "r-1"})
	// 本实例发出的回声被丢弃
	n.HandleEvent(context.Background(), kafka.Event{
		Origin: "origin-a", Channel: ModelChannel("m-1"), Kind: KindModelData, Payload: payload, Timestamp: 1,
	})
	// 其他实例的事件正常分发
	n.HandleEvent(context.Background(), kafka.Event{
		Origin: "origin-b", Channel: ModelChannel("m-1"), Kind: KindModelData, Payload: payload, Timestamp: 2,
	})

	batches := col.waitForBatches(t, 1)
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, int64(2), batches[0][0].Timestamp)
}
