package orders

import "testing"

func TestCanReenqueue(t *testing.T) {
	cases := []struct {
		status Status
		want   bool
	}{
		{StatusCreated, true},
		{StatusFailedQueue, true},
		{StatusOutOfStock, true},
		{StatusProcessed, false},
		{StatusProductNotFound, false},
		{StatusFailed, false},
	}
	for _, c := range cases {
		if got := CanReenqueue(c.status); got != c.want {
			t.Errorf("CanReenqueue(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}
