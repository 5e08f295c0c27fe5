package sched

import (
	"testing"
	"time"
)

func TestBoundedQueuePolicyReplenish(t *testing.T) {
	p := NewBoundedQueuePolicy(DefaultConfig())

	tests := []struct {
		name     string
		queueLen int
		duration time.Duration
		want     int
	}{
		{"empty queue", 0, 0, 2},
		{"one below min", 1, 0, 1},
		{"at min", 2, 0, 0},
		{"above min", 3, 0, 0},
		{"empty queue after slow item", 0, time.Second, 2},
		{"one slot after slow item", 1, time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Replenish(tt.queueLen, tt.duration, 100, 4)
			if got != tt.want {
				t.Errorf("Replenish(%d, %v) = %d, want %d", tt.queueLen, tt.duration, got, tt.want)
			}
		})
	}
}

func TestBoundedQueuePolicySlowWithholding(t *testing.T) {
	// The withholding branch needs queueLen below min but at the max bound,
	// which only a min > max configuration reaches.
	p := NewBoundedQueuePolicy(Config{MinQueueSize: 4, MaxQueueSize: 2, SlowThreshold: 100 * time.Millisecond})

	if got := p.Replenish(2, 200*time.Millisecond, 100, 4); got != 0 {
		t.Errorf("slow full node: Replenish = %d, want 0 (withheld)", got)
	}
	if got := p.Replenish(2, 50*time.Millisecond, 100, 4); got != 0 {
		t.Errorf("fast full node: Replenish = %d, want 0 (queue at bound)", got)
	}
	if got := p.Replenish(1, 200*time.Millisecond, 100, 4); got != 1 {
		t.Errorf("slow node below bound: Replenish = %d, want 1", got)
	}
}

func TestBoundedQueuePolicyDefaults(t *testing.T) {
	p := NewBoundedQueuePolicy(Config{})
	if p.MinQueueSize != 2 || p.MaxQueueSize != 2 {
		t.Errorf("queue sizes = %d/%d, want 2/2", p.MinQueueSize, p.MaxQueueSize)
	}
	if p.SlowThreshold != 100*time.Millisecond {
		t.Errorf("slow threshold = %v, want 100ms", p.SlowThreshold)
	}
	if p.QueueBound() != 2 {
		t.Errorf("QueueBound = %d, want 2", p.QueueBound())
	}
}

func TestBoundedQueuePolicyInitialBatch(t *testing.T) {
	p := NewBoundedQueuePolicy(DefaultConfig())
	if got := p.InitialBatch(100, 4); got != 8 {
		t.Errorf("InitialBatch(100, 4) = %d, want 8", got)
	}
	if got := p.InitialBatch(3, 2); got != 4 {
		t.Errorf("InitialBatch(3, 2) = %d, want 4 (scheduler caps at pending)", got)
	}
}

func TestClassicPolicy(t *testing.T) {
	p := ClassicPolicy{}

	if got := p.InitialBatch(100, 2); got != 25 {
		t.Errorf("InitialBatch(100, 2) = %d, want 25", got)
	}
	if got := p.InitialBatch(4, 3); got != 6 {
		t.Errorf("InitialBatch(4, 3) = %d, want 6 (floor of 2 per node)", got)
	}
	if got := p.QueueBound(); got != 0 {
		t.Errorf("QueueBound = %d, want 0 (unbounded)", got)
	}

	// 100 pending over 2 nodes: min 12, max 25.
	if got := p.Replenish(5, 0, 100, 2); got != 20 {
		t.Errorf("Replenish(5) = %d, want 20", got)
	}
	if got := p.Replenish(12, 0, 100, 2); got != 0 {
		t.Errorf("Replenish(12) = %d, want 0", got)
	}
	// Duration never matters for the classic policy.
	if got := p.Replenish(12, time.Hour, 100, 2); got != 0 {
		t.Errorf("Replenish(12, 1h) = %d, want 0", got)
	}
}
