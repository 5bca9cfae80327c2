package state

import (
	"encoding/json"
	"testing"
)

func TestNew(t *testing.T) {
	t.Parallel()

	s := New("example.com")

	t.Run("sets target and run id", func(t *testing.T) {
		t.Parallel()
		if s.Target() != "example.com" {
			t.Errorf("expected target example.com, got %q", s.Target())
		}
		if len(s.RunID()) != 12 {
			t.Errorf("expected 12 character run id, got %q", s.RunID())
		}
	})

	t.Run("starts with empty errors", func(t *testing.T) {
		t.Parallel()
		if len(s.Errors()) != 0 {
			t.Errorf("expected no errors, got %v", s.Errors())
		}
	})

	t.Run("run ids are unique", func(t *testing.T) {
		t.Parallel()
		if New("a").RunID() == New("a").RunID() {
			t.Error("expected distinct run ids")
		}
	})
}

func TestFlags(t *testing.T) {
	t.Parallel()

	s := New("example.com")
	if s.Flag(FlagResume) || s.Flag(FlagForce) {
		t.Fatal("expected flags to be unset")
	}

	s.SetFlags(true, false)
	if !s.Flag(FlagResume) {
		t.Error("expected resume flag")
	}
	if s.Flag(FlagForce) {
		t.Error("expected force flag to be false")
	}
}

func TestClone(t *testing.T) {
	t.Parallel()

	t.Run("nested values are independent", func(t *testing.T) {
		t.Parallel()

		orig := State{
			"subdomains": []any{"a.example.com"},
			"resolved":   map[string]any{"a": []any{"1.2.3.4"}},
			"ports":      map[string][]int{"h": {80}},
		}
		c := orig.Clone()

		c["subdomains"] = append(c["subdomains"].([]any), "b.example.com")
		c["resolved"].(map[string]any)["a"].([]any)[0] = "9.9.9.9"
		c["ports"].(map[string][]int)["h"][0] = 443

		if len(orig["subdomains"].([]any)) != 1 {
			t.Error("clone append leaked into original")
		}
		if orig["resolved"].(map[string]any)["a"].([]any)[0] != "1.2.3.4" {
			t.Error("nested map mutation leaked into original")
		}
		if orig["ports"].(map[string][]int)["h"][0] != 80 {
			t.Error("typed map mutation leaked into original")
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()
		var s State
		if s.Clone() != nil {
			t.Error("expected nil clone")
		}
	})
}

func TestPersistable(t *testing.T) {
	t.Parallel()

	s := New("example.com")
	s["__ui"] = struct{}{}
	s["custom"] = "kept"

	p := s.Persistable()
	if _, ok := p["__ui"]; ok {
		t.Error("expected transient field to be dropped")
	}
	if p["custom"] != "kept" {
		t.Error("expected unknown fields to pass through")
	}
	if _, ok := s["__ui"]; !ok {
		t.Error("original state must keep transient field")
	}
	if _, err := json.Marshal(p); err != nil {
		t.Errorf("persistable state must marshal: %v", err)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("append keeps order", func(t *testing.T) {
		t.Parallel()

		s := New("example.com")
		s.AppendError(ErrorRecord{Step: "a", Impl: "x", Error: ErrImplNotFound})
		s.AppendError(ErrorRecord{Step: "b", Impl: "y", Exception: "boom"})

		errs := s.Errors()
		if len(errs) != 2 {
			t.Fatalf("expected 2 records, got %d", len(errs))
		}
		if errs[0].Step != "a" || errs[0].Error != ErrImplNotFound {
			t.Errorf("unexpected first record: %+v", errs[0])
		}
		if errs[1].Step != "b" || errs[1].Exception != "boom" {
			t.Errorf("unexpected second record: %+v", errs[1])
		}
	})

	t.Run("survives a json round trip", func(t *testing.T) {
		t.Parallel()

		s := New("example.com")
		s.AppendError(ErrorRecord{Step: "b", Impl: "y", Exception: "boom"})

		data, err := json.Marshal(s)
		if err != nil {
			t.Fatal(err)
		}
		var back State
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		back.AppendError(ErrorRecord{Step: "c", Error: ErrInterrupted})

		errs := back.Errors()
		if len(errs) != 2 || errs[0].Exception != "boom" || errs[1].Error != ErrInterrupted {
			t.Errorf("unexpected records after reload: %+v", errs)
		}
	})

	t.Run("missing field appends", func(t *testing.T) {
		t.Parallel()

		s := State{KeyRunID: "r", KeyTarget: "t"}
		s.AppendError(ErrorRecord{Step: "a", Error: "x"})
		if len(s.Errors()) != 1 {
			t.Errorf("expected 1 record, got %d", len(s.Errors()))
		}
	})
}

func TestStrings(t *testing.T) {
	t.Parallel()

	s := State{"hosts": []any{"a", 1, "b"}}
	got := s.Strings("hosts")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("unexpected strings: %v", got)
	}

	s.SetStrings("hosts", []string{"c"})
	if v, ok := s["hosts"].([]any); !ok || len(v) != 1 {
		t.Errorf("expected []any form, got %T", s["hosts"])
	}
}
