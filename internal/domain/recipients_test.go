package domain

import "testing"

func TestRecipientSet_DedupAndOrder(t *testing.T) {
	s := NewRecipientSet(0)
	for _, e := range []string{"b@x.com", "a@x.com", "b@x.com", "c@x.com"} {
		s.Add(e)
	}
	got := s.Emails()
	want := []string{"b@x.com", "a@x.com", "c@x.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if s.Limit() != DefaultMaxRecipients {
		t.Errorf("expected default limit, got %d", s.Limit())
	}
}

func TestRecipientSet_Capacity(t *testing.T) {
	s := NewRecipientSet(2)
	s.Add("a@x.com")
	s.Add("b@x.com")
	if s.Add("c@x.com") {
		t.Error("add beyond capacity must be rejected")
	}
	if !s.Full() || s.Len() != 2 {
		t.Errorf("expected full set of 2, got %d", s.Len())
	}
}

func TestRecipientSet_MergeStopsAtCapacity(t *testing.T) {
	a := NewRecipientSet(3)
	a.Add("a@x.com")
	b := NewRecipientSet(10)
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"} {
		b.Add(e)
	}
	a.Merge(b)
	if a.Len() != 3 || a.Contains("d@x.com") {
		t.Errorf("expected [a b c], got %v", a.Emails())
	}
}
