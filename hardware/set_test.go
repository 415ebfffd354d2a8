package hardware

import "testing"

type device string

func (d device) Key() string { return string(d) }

func keys(s *Set[device]) []string {
	var out []string
	s.Each(func(d device) { out = append(out, string(d)) })
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSet_AddRemove(t *testing.T) {
	s := NewSet[device]()
	if !s.IsEmpty() {
		t.Fatal("new set not empty")
	}

	if !s.Add("a") || !s.Add("b") || !s.Add("c") {
		t.Fatal("Add of new member returned false")
	}
	if s.Add("b") {
		t.Error("Add of existing member returned true")
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}

	if !s.Remove("b") {
		t.Error("Remove of member returned false")
	}
	if s.Remove("b") {
		t.Error("Remove of absent member returned true")
	}
	if s.Contains("b") {
		t.Error("removed member still contained")
	}
	if got := keys(s); !equal(got, []string{"a", "c"}) {
		t.Errorf("order = %v, want [a c]", got)
	}
}

func TestSet_CloneIsIndependent(t *testing.T) {
	s := NewSet[device]("a", "b")
	c := s.Clone()
	c.Remove("a")
	c.Add("z")

	if got := keys(s); !equal(got, []string{"a", "b"}) {
		t.Errorf("original = %v, want [a b]", got)
	}
	if got := keys(c); !equal(got, []string{"b", "z"}) {
		t.Errorf("clone = %v, want [b z]", got)
	}
}

func TestSet_ZeroValue(t *testing.T) {
	var s Set[device]
	if s.Contains("a") {
		t.Error("zero set contains a")
	}
	s.Add("a")
	if item, ok := s.Get("a"); !ok || item != "a" {
		t.Errorf("Get = %q, %v", item, ok)
	}
	if items := s.Items(); len(items) != 1 {
		t.Errorf("Items = %v", items)
	}
}

func TestReconcile(t *testing.T) {
	s := NewSet[device]("a", "b", "c")
	created := 0

	detected, lost := Reconcile(s, []string{"c", "d", "a", "e"}, func(k string) string { return k }, func(k string) device {
		created++
		return device(k)
	})

	var got []string
	for _, d := range detected {
		got = append(got, string(d))
	}
	if !equal(got, []string{"d", "e"}) {
		t.Errorf("detected = %v, want [d e]", got)
	}
	if len(lost) != 1 || lost[0] != "b" {
		t.Errorf("lost = %v, want [b]", lost)
	}
	if created != 2 {
		t.Errorf("created %d members, want 2", created)
	}
	if got := keys(s); !equal(got, []string{"a", "c", "d", "e"}) {
		t.Errorf("set = %v, want [a c d e]", got)
	}

	detected, lost = Reconcile(s, []string{"a", "c", "d", "e"}, func(k string) string { return k }, func(k string) device { return device(k) })
	if len(detected) != 0 || len(lost) != 0 {
		t.Errorf("unchanged scan reported %v / %v", detected, lost)
	}
}
