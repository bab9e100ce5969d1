package db

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/maxim/sportrank/internal/models"
)

func TestOrderIdentityLookup(t *testing.T) {
	full := &models.Order{
		SourceID:    uuid.New(),
		OrderNumber: "123-п",
		OrderDate:   "15.01.2024",
	}
	clause, args, ok := orderIdentityLookup(full)
	if !ok {
		t.Fatal("full identity yielded no lookup")
	}
	if clause != "source_id = $1 AND order_number = $2 AND order_date = $3" {
		t.Fatalf("clause = %q", clause)
	}
	if len(args) != 3 || args[1] != "123-п" || args[2] != "15.01.2024" {
		t.Fatalf("args = %v", args)
	}

	partials := []*models.Order{
		{OrderNumber: "123-п", OrderDate: "15.01.2024"},
		{SourceID: uuid.New(), OrderDate: "15.01.2024"},
		{SourceID: uuid.New(), OrderNumber: "123-п"},
	}
	for i, o := range partials {
		if _, _, ok := orderIdentityLookup(o); ok {
			t.Errorf("partial identity #%d yielded a lookup", i)
		}
	}
}

func TestBuildOrderFilter_Empty(t *testing.T) {
	where, args := buildOrderFilter(OrderListParams{})
	if where != "1=1" {
		t.Fatalf("empty filter = %q", where)
	}
	if len(args) != 0 {
		t.Fatalf("empty filter produced %d args", len(args))
	}
}

func TestBuildOrderFilter_AllParams(t *testing.T) {
	where, args := buildOrderFilter(OrderListParams{
		SourceCode: "spb_kfkis",
		Status:     "extracted",
		Search:     "разряд",
	})

	mustContain := []string{
		"source_id = (SELECT id FROM registry_sources WHERE code = $1)",
		"status = $2",
		"title ILIKE $3 OR order_number ILIKE $3",
	}
	for _, token := range mustContain {
		if !strings.Contains(where, token) {
			t.Fatalf("filter missing token %q: %s", token, where)
		}
	}

	if len(args) != 3 {
		t.Fatalf("got %d args, want 3: %v", len(args), args)
	}
	if args[2] != "%разряд%" {
		t.Errorf("search arg = %v, want wildcard-wrapped", args[2])
	}
}

func TestBuildOrderFilter_StatusAll(t *testing.T) {
	where, args := buildOrderFilter(OrderListParams{Status: "all"})
	if strings.Contains(where, "status") {
		t.Fatalf("status=all must not constrain status: %s", where)
	}
	if len(args) != 0 {
		t.Fatalf("status=all produced args: %v", args)
	}
}
