package store_test

import (
	"errors"
	"testing"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/store"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Saved Views ──────────────────────────────────────────────────────────────

func TestViewKeyIsCaseInsensitive(t *testing.T) {
	if store.ViewKey(" Weekly ") != store.ViewKey("weekly") {
		t.Errorf("ViewKey should normalize: %q vs %q", store.ViewKey(" Weekly "), store.ViewKey("weekly"))
	}
}

func TestPutGetView(t *testing.T) {
	s := testDB(t)
	v := model.SavedView{Name: "Weekly", AccountID: "act_1", Domain: "example.com", Group: "ad", Days: 7}
	if err := s.PutView(v); err != nil {
		t.Fatalf("PutView: %v", err)
	}
	got, ok, err := s.GetView("weekly")
	if err != nil || !ok {
		t.Fatalf("GetView: ok=%v err=%v", ok, err)
	}
	if got.Domain != "example.com" || got.Days != 7 || got.Name != "Weekly" {
		t.Errorf("GetView = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestGetViewMissing(t *testing.T) {
	s := testDB(t)
	_, ok, err := s.GetView("nope")
	if err != nil || ok {
		t.Errorf("GetView(missing): ok=%v err=%v", ok, err)
	}
}

func TestPutViewReplacesSameName(t *testing.T) {
	s := testDB(t)
	_ = s.PutView(model.SavedView{Name: "daily", Domain: "a.com"})
	_ = s.PutView(model.SavedView{Name: "DAILY", Domain: "b.com"})

	views, err := s.ListViews()
	if err != nil {
		t.Fatalf("ListViews: %v", err)
	}
	if len(views) != 1 || views[0].Domain != "b.com" {
		t.Errorf("ListViews = %+v", views)
	}
}

func TestPutViewValidates(t *testing.T) {
	s := testDB(t)
	cases := map[string]model.SavedView{
		"no name":     {Domain: "a.com"},
		"no domain":   {Name: "x"},
		"bad group":   {Name: "x", Domain: "a.com", Group: "campaign"},
		"bad days":    {Name: "x", Domain: "a.com", Days: -1},
		"bad range":   {Name: "x", Domain: "a.com", Since: "2024-05-10", Until: "2024-05-01"},
		"bad date":    {Name: "x", Domain: "a.com", Since: "yesterday"},
		"blank name":  {Name: "   ", Domain: "a.com"},
		"huge window": {Name: "x", Domain: "a.com", Days: 1000},
	}
	for name, v := range cases {
		err := s.PutView(v)
		var verr *util.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", name, err)
		}
	}
}

func TestListAndDeleteViews(t *testing.T) {
	s := testDB(t)
	_ = s.PutView(model.SavedView{Name: "b", Domain: "b.com"})
	_ = s.PutView(model.SavedView{Name: "a", Domain: "a.com"})

	views, _ := s.ListViews()
	if len(views) != 2 || views[0].Name != "a" {
		t.Fatalf("ListViews order = %+v", views)
	}
	if err := s.DeleteView("A"); err != nil {
		t.Fatalf("DeleteView: %v", err)
	}
	if err := s.DeleteView("missing"); err != nil {
		t.Errorf("DeleteView(missing): %v", err)
	}
	views, _ = s.ListViews()
	if len(views) != 1 || views[0].Name != "b" {
		t.Errorf("after delete = %+v", views)
	}
}
