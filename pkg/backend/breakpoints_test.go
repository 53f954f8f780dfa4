package backend

import "testing"

func TestBreakpointTableIDsNeverReused(t *testing.T) {
	tbl := NewBreakpointTable()
	a := tbl.Add(&Breakpoint{Loc: Location{File: "a.c", Line: 1}, Enabled: true})
	b := tbl.Add(&Breakpoint{Loc: Location{File: "b.c", Line: 2}, Enabled: true})
	if a.ID == b.ID {
		t.Fatalf("duplicate breakpoint id %d", a.ID)
	}
	tbl.Remove(a.ID)
	c := tbl.Add(&Breakpoint{Loc: Location{File: "c.c", Line: 3}, Enabled: true})
	if c.ID == a.ID {
		t.Errorf("id %d was reused after removal", a.ID)
	}
}

func TestBreakpointTableLookups(t *testing.T) {
	tbl := NewBreakpointTable()
	bp := tbl.Add(&Breakpoint{Loc: Location{Function: "main"}, BackendID: "7", Enabled: true})

	if got, ok := tbl.Get(bp.ID); !ok || got != bp {
		t.Errorf("Get(%d) = %v, %v", bp.ID, got, ok)
	}
	if got, ok := tbl.FindByBackendID("7"); !ok || got != bp {
		t.Errorf("FindByBackendID(7) = %v, %v", got, ok)
	}
	if _, ok := tbl.FindByBackendID("8"); ok {
		t.Error("found nonexistent backend id")
	}
}

func TestBreakpointTableAllSorted(t *testing.T) {
	tbl := NewBreakpointTable()
	for i := 0; i < 5; i++ {
		tbl.Add(&Breakpoint{Loc: Location{File: "x.c", Line: i}})
	}
	tbl.Remove(3)
	all := tbl.All()
	if len(all) != 4 {
		t.Fatalf("len(All()) = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("All() not sorted by id: %d before %d", all[i-1].ID, all[i].ID)
		}
	}
}

func TestLocationString(t *testing.T) {
	for _, tc := range []struct {
		loc  Location
		want string
	}{
		{Location{File: "main.c", Line: 10}, "main.c:10"},
		{Location{Function: "compute"}, "compute"},
		{Location{Address: 0x401000}, "*0x401000"},
		{Location{Expression: "globalCounter"}, "globalCounter"},
	} {
		if got := tc.loc.String(); got != tc.want {
			t.Errorf("Location%+v = %q, want %q", tc.loc, got, tc.want)
		}
	}
}
