package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	bolt "go.etcd.io/bbolt"

	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/model"
	"github.com/flyghtxmz/Dashboard-V2-sub000/internal/util"
)

// ─── Saved Views ──────────────────────────────────────────────────────────────

var validate = validator.New(validator.WithRequiredStructEnabled())

// ViewKey returns the bbolt key for a view name. Names are case-insensitive.
func ViewKey(name string) string {
	return "view:" + util.NormalizeKey(name)
}

// PutView validates and stores v, replacing any view with the same name.
func (s *Store) PutView(v model.SavedView) error {
	v.Name = strings.TrimSpace(v.Name)
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = strings.ToLower(fe.Field())
			}
			return &util.ValidationError{Fields: fields, Reason: "invalid view"}
		}
		return err
	}
	if v.Days == 0 && (v.Since != "" || v.Until != "") {
		if _, _, err := util.ResolveRange(v.Since, v.Until); err != nil {
			return err
		}
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding view: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).Put([]byte(ViewKey(v.Name)), b)
	})
}

// GetView returns the named view; ok is false when it does not exist.
func (s *Store) GetView(name string) (v model.SavedView, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketViews).Get([]byte(ViewKey(name)))
		if raw == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(raw, &v)
	})
	return v, ok, err
}

// ListViews returns every saved view ordered by name.
func (s *Store) ListViews() ([]model.SavedView, error) {
	var views []model.SavedView
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).ForEach(func(_, raw []byte) error {
			var v model.SavedView
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			views = append(views, v)
			return nil
		})
	})
	return views, err
}

// DeleteView removes the named view. Deleting a missing view is not an error.
func (s *Store) DeleteView(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketViews).Delete([]byte(ViewKey(name)))
	})
}
