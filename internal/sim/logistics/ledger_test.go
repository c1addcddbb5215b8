package logistics

import "testing"

func TestLargestTransferDealSizing(t *testing.T) {
	cases := []struct {
		name    string
		supply  int
		demand  int
		want    int
		wantNil bool
	}{
		{name: "demand smaller", supply: 10, demand: -6, want: 6},
		{name: "exact", supply: 10, demand: -10, want: 10},
		{name: "supply smaller", supply: 4, demand: -9, want: 4},
		{name: "supply only", supply: 10, wantNil: true},
		{name: "demand only", demand: -3, wantNil: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := NewLedger()
			l.Set("wood", "S", tc.supply)
			l.Set("wood", "D", tc.demand)
			d, ok := l.LargestTransferDeal("wood")
			if tc.wantNil {
				if ok {
					t.Fatalf("expected no deal, got %+v", d)
				}
				return
			}
			if !ok || d.Quantity != tc.want || d.Supplier != "S" || d.Destination != "D" {
				t.Fatalf("got %+v ok=%v, want quantity %d", d, ok, tc.want)
			}
		})
	}
}

func TestLargestTransferDealPicksExtremes(t *testing.T) {
	l := NewLedger()
	l.Set("stone", "A", 5)
	l.Set("stone", "B", 12)
	l.Set("stone", "C", 12)
	l.Set("stone", "X", -3)
	l.Set("stone", "Y", -8)
	d, ok := l.LargestTransferDeal("stone")
	if !ok || d.Supplier != "B" || d.Destination != "Y" || d.Quantity != 8 {
		t.Fatalf("unexpected deal %+v", d)
	}
}

func TestExcludeDealKeepsRemainder(t *testing.T) {
	l := NewLedger()
	l.Set("wood", "S", 10)
	l.Set("wood", "D1", -6)
	l.Set("wood", "D2", -3)

	d, _ := l.LargestTransferDeal("wood")
	l.ExcludeDealFromRecords(d)
	if l.Get("wood", "S") != 4 || l.Get("wood", "D1") != 0 {
		t.Fatalf("after first deal: S=%d D1=%d", l.Get("wood", "S"), l.Get("wood", "D1"))
	}
	d, ok := l.LargestTransferDeal("wood")
	if !ok || d.Destination != "D2" || d.Quantity != 3 {
		t.Fatalf("supplier should re-enter the round: %+v", d)
	}
	l.ExcludeDealFromRecords(d)
	if _, ok := l.LargestTransferDeal("wood"); ok {
		t.Fatalf("no demand should remain")
	}
	if l.Get("wood", "S") != 1 {
		t.Fatalf("remaining supply %d", l.Get("wood", "S"))
	}
}
