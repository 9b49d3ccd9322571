package flow

import (
	"fmt"
	"time"
)

func (s *FlowTestSuite) TestTTLCache() {
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	SetTimeNowFn(func() time.Time { return now })
	defer RestoreTimeNow()

	c := NewTTL[string, string]()
	c.Set("key1", "value1", 200*time.Millisecond)
	v, ok := c.Get("key1")
	s.True(ok)
	s.Equal("value1", v)

	now = now.Add(250 * time.Millisecond)
	v, ok = c.Get("key1")
	s.False(ok)
	s.Equal("", v)
}

func (s *FlowTestSuite) TestTTLCacheSweepsExpired() {
	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	SetTimeNowFn(func() time.Time { return now })
	defer RestoreTimeNow()

	c := NewTTL[string, int]()
	for i := 0; i < ttlSweepThreshold; i++ {
		c.Set(fmt.Sprint(i), i, time.Second)
	}
	now = now.Add(2 * time.Second)
	c.Set("fresh", 1, time.Second)
	s.Equal(1, c.Len())
}

func (s *FlowTestSuite) TestComputeKey() {
	s.Equal(ComputeKey("a", "bc"), ComputeKey("a", "bc"))
	s.NotEqual(ComputeKey("a", "bc"), ComputeKey("ab", "c"))
}
