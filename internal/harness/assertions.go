package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"github.com/JohnVinyard/annotate-api-sub000/internal/query"
	"github.com/JohnVinyard/annotate-api-sub000/internal/repository"
)

// checkExpect compares a response with its expectation and returns one
// message per mismatch.
func checkExpect(ev TraceEvent, headers http.Header, want Expect) []string {
	var errs []string
	if ev.Status != want.Status {
		errs = append(errs, fmt.Sprintf("status: got %d, want %d", ev.Status, want.Status))
	}
	for name, value := range want.Headers {
		if got := headers.Get(name); got != value {
			errs = append(errs, fmt.Sprintf("header %s: got %q, want %q", name, got, value))
		}
	}
	if want.Body != nil && !matches(ev.Body, canonical(want.Body)) {
		errs = append(errs, fmt.Sprintf("body: got %s, want %s", render(ev.Body), render(want.Body)))
	}
	if len(want.Absent) > 0 {
		obj, _ := ev.Body.(map[string]any)
		for _, key := range want.Absent {
			if _, ok := obj[key]; ok {
				errs = append(errs, fmt.Sprintf("body: unexpected key %q", key))
			}
		}
	}
	return errs
}

// matches compares decoded JSON values. Objects match when every expected
// key matches; everything else must be equal.
func matches(actual, expected any) bool {
	want, ok := expected.(map[string]any)
	if !ok {
		return reflect.DeepEqual(actual, expected)
	}
	got, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for key, w := range want {
		g, exists := got[key]
		if !exists || !matches(g, w) {
			return false
		}
	}
	return true
}

// canonical passes v through JSON so YAML and response values compare
// with the same types.
func canonical(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func render(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	repo, err := h.registry.For(a.Class)
	if err != nil {
		return err
	}
	switch a.Type {
	case AssertCount:
		n, err := repo.Len(ctx)
		if err != nil {
			return err
		}
		if n != a.Count {
			return fmt.Errorf("%s count: got %d, want %d", a.Class, n, a.Count)
		}
	case AssertDocument:
		class := repo.Mapper().Class()
		page, err := repo.Filter(ctx, query.Equal(class.ID(), a.ID), repository.FirstPage(1))
		if err != nil {
			return err
		}
		if len(page.Records) == 0 {
			return fmt.Errorf("%s %s not stored", a.Class, a.ID)
		}
		doc := canonical(page.Records[0])
		if !matches(doc, canonical(a.Expect)) {
			return fmt.Errorf("%s %s: got %s, want %s", a.Class, a.ID, render(doc), render(a.Expect))
		}
	}
	return nil
}
