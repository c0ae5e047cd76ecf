package metadata

import (
	"sync"
	"testing"
)

func TestRate_UnknownUntilSet(t *testing.T) {
	st := New()
	if _, ok := st.Rate("a"); ok {
		t.Fatal("Rate on empty store: expected false")
	}

	st.Declare("a", map[string]any{"unit": "W"})
	if _, ok := st.Rate("a"); ok {
		t.Error("Declare must not make a rate known")
	}

	st.SetRate("a", 2.5)
	got, ok := st.Rate("a")
	if !ok || got != 2.5 {
		t.Errorf("Rate: got %v, %v; want 2.5, true", got, ok)
	}
}

func TestSetRate_ZeroIsKnown(t *testing.T) {
	st := New()
	st.SetRate("a", 0)
	if _, ok := st.Rate("a"); !ok {
		t.Error("a rate of 0 should still be known")
	}
}

func TestDeclare_CopiesAttributes(t *testing.T) {
	st := New()
	attrs := map[string]any{"unit": "W"}
	st.Declare("a", attrs)
	attrs["unit"] = "kW"

	e, ok := st.Get("a")
	if !ok {
		t.Fatal("Get: expected entry")
	}
	if e.Declared["unit"] != "W" {
		t.Errorf("Declared unit: got %v, want W", e.Declared["unit"])
	}

	e.Declared["unit"] = "mW"
	again, _ := st.Get("a")
	if again.Declared["unit"] != "W" {
		t.Error("Get must return a copy of the declared attributes")
	}
}

func TestForget(t *testing.T) {
	st := New()
	st.SetRate("a", 1)
	st.SetRate("b", 2)
	st.Forget("a", "missing")

	if _, ok := st.Rate("a"); ok {
		t.Error("a should be forgotten")
	}
	if _, ok := st.Rate("b"); !ok {
		t.Error("b should be kept")
	}
}

func TestList_SortedByName(t *testing.T) {
	st := New()
	for _, n := range []string{"c", "a", "b"} {
		st.SetRate(n, 1)
	}
	list := st.List()
	if len(list) != 3 {
		t.Fatalf("List: got %d entries, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].Name != want {
			t.Errorf("List[%d]: got %q, want %q", i, list[i].Name, want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.SetRate("m", float64(j))
				st.Rate("m")
				st.List()
			}
		}(i)
	}
	wg.Wait()
}
