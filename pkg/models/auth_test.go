package models

import (
	"encoding/json"
	"testing"
)

func TestLoginTrace_AppendKeepsOrder(t *testing.T) {
	trace := NewLoginTrace()
	trace.Append(StrategyPlainTable, OutcomeNoMatch, nil)
	trace.Append(StrategyHashTable, OutcomeNoMatch, nil)
	trace.Append(StrategyPasswordOnly, OutcomeSuccess, nil)

	attempts := trace.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("len = %d, want 3", len(attempts))
	}
	want := []string{StrategyPlainTable, StrategyHashTable, StrategyPasswordOnly}
	for i, a := range attempts {
		if a.Strategy != want[i] {
			t.Errorf("attempt %d strategy = %q, want %q", i, a.Strategy, want[i])
		}
	}
	if !trace.Succeeded() {
		t.Error("Succeeded() = false, want true")
	}
	if trace.UsedStrategy(StrategyProcedure) {
		t.Error("UsedStrategy(procedure) = true, want false")
	}
}

func TestLoginTrace_AttemptsIsCopy(t *testing.T) {
	trace := NewLoginTrace()
	trace.Append(StrategyProcedure, OutcomeError, nil)

	attempts := trace.Attempts()
	attempts[0].Strategy = "tampered"

	if got := trace.Attempts()[0].Strategy; got != StrategyProcedure {
		t.Errorf("trace mutated through copy: strategy = %q", got)
	}
}

func TestLoginTrace_MasksCredentials(t *testing.T) {
	trace := NewLoginTrace()
	trace.Append(StrategyProcedure, OutcomeNoMatch, map[string]any{
		"login":    "ivan",
		"password": "secret",
		"PWD":      "secret",
	})

	detail := trace.Attempts()[0].Detail
	if detail["login"] != "ivan" {
		t.Errorf("login = %v, want ivan", detail["login"])
	}
	if detail["password"] != "***" || detail["PWD"] != "***" {
		t.Errorf("credentials not masked: %v", detail)
	}
}

func TestLoginTrace_MarshalJSON(t *testing.T) {
	trace := NewLoginTrace()
	data, err := json.Marshal(trace)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("empty trace = %s, want []", data)
	}

	trace.Append(StrategyPlainTable, OutcomeSuccess, nil)
	data, err = json.Marshal(trace)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded []LoginAttempt
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Outcome != OutcomeSuccess {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWeakerTier(t *testing.T) {
	if got := WeakerTier(TierLive, TierStatic); got != TierStatic {
		t.Errorf("WeakerTier(live, static) = %q", got)
	}
	if got := WeakerTier(TierUnavailable, TierLive); got != TierUnavailable {
		t.Errorf("WeakerTier(unavailable, live) = %q", got)
	}
}

func TestSchemaProfile_WithTableMechanism(t *testing.T) {
	p := &SchemaProfile{
		Mechanism: LoginMechanismProcedure,
		Procedure: &ProcedureDescriptor{Name: "USER_LOGIN"},
		Table:     &TableDescriptor{Table: "USERS", LoginColumn: "NAME", PasswordColumn: "PASS"},
	}
	forced := p.WithTableMechanism()

	if forced.Mechanism != LoginMechanismTable || forced.Procedure != nil {
		t.Errorf("forced = %+v", forced)
	}
	if p.Mechanism != LoginMechanismProcedure || p.Procedure == nil {
		t.Error("original profile was modified")
	}
}
