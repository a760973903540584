package rules

import (
	"encoding/json"
	"testing"

	"trialqc/internal/records"
)

func record(fields map[string]string) records.Record {
	return records.Record{Fields: fields}
}

func TestMatchesEmptyConditions(t *testing.T) {
	if !Matches(record(map[string]string{"arm": "A"}), nil) {
		t.Fatalf("empty conditions must match")
	}
}

func TestMatchesLiteral(t *testing.T) {
	lit := "A"
	conds := map[string]Condition{"arm": {Literal: &lit}}
	if !Matches(record(map[string]string{"arm": "A"}), conds) {
		t.Fatalf("expected match")
	}
	if Matches(record(map[string]string{"arm": "B"}), conds) {
		t.Fatalf("expected non-match")
	}
}

func TestMatchesMissingFieldFailsClosed(t *testing.T) {
	lit := "A"
	conds := map[string]Condition{"arm": {Literal: &lit}}
	if Matches(record(map[string]string{"site": "01"}), conds) {
		t.Fatalf("absent field must fail closed")
	}
}

func TestMatchesMembership(t *testing.T) {
	conds := map[string]Condition{"visit": {OneOf: []string{"V1", "V2"}}}
	if !Matches(record(map[string]string{"visit": "V2"}), conds) {
		t.Fatalf("expected match")
	}
	if Matches(record(map[string]string{"visit": "V3"}), conds) {
		t.Fatalf("expected non-match")
	}
}

func TestMatchesPredicateObject(t *testing.T) {
	ne := "SCREENING"
	conds := map[string]Condition{
		"visit": {NotEquals: &ne, NotIn: []string{"UNSCHEDULED"}},
	}
	if !Matches(record(map[string]string{"visit": "V1"}), conds) {
		t.Fatalf("expected match")
	}
	if Matches(record(map[string]string{"visit": "SCREENING"}), conds) {
		t.Fatalf("not_equals must reject")
	}
	if Matches(record(map[string]string{"visit": "UNSCHEDULED"}), conds) {
		t.Fatalf("not_in must reject")
	}
}

func TestConditionUnmarshalScalar(t *testing.T) {
	var c Condition
	if err := json.Unmarshal([]byte(`"COMPLETED"`), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Literal == nil || *c.Literal != "COMPLETED" {
		t.Fatalf("unexpected literal: %+v", c)
	}
}

func TestConditionUnmarshalNumber(t *testing.T) {
	var c Condition
	if err := json.Unmarshal([]byte(`5`), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Literal == nil || *c.Literal != "5" {
		t.Fatalf("unexpected literal: %+v", c)
	}
}

func TestConditionUnmarshalList(t *testing.T) {
	var c Condition
	if err := json.Unmarshal([]byte(`["A","B"]`), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.OneOf) != 2 || c.OneOf[1] != "B" {
		t.Fatalf("unexpected list: %+v", c)
	}
}

func TestConditionUnmarshalObject(t *testing.T) {
	var c Condition
	raw := `{"equals":"A","not_in":["X","Y"]}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Equals == nil || *c.Equals != "A" {
		t.Fatalf("unexpected equals: %+v", c)
	}
	if len(c.NotIn) != 2 {
		t.Fatalf("unexpected not_in: %+v", c)
	}
}

func TestConditionUnmarshalUnknownKey(t *testing.T) {
	var c Condition
	if err := json.Unmarshal([]byte(`{"like":"A%"}`), &c); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
