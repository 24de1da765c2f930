package schema

import "testing"

func TestRegisterProtocolMerge(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterProtocol("tcp", "Transmission Control Protocol", "tcp"); err != nil {
		t.Fatalf("RegisterProtocol() error: %v", err)
	}
	if err := reg.RegisterProtocol("TCP", "Transport Layer", "tcp"); err != nil {
		t.Fatalf("RegisterProtocol() merge error: %v", err)
	}

	p, ok := reg.Protocol("Tcp")
	if !ok {
		t.Fatalf("Protocol() not found after case-insensitive registration")
	}
	want := "Transmission Control Protocol / Transport Layer"
	if p.LongName != want {
		t.Errorf("LongName = %q, want %q", p.LongName, want)
	}
}

func TestRegisterProtocolFilterConflict(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterProtocol("tcp", "TCP", "tcp"); err != nil {
		t.Fatalf("RegisterProtocol() error: %v", err)
	}
	if err := reg.RegisterProtocol("tcp", "TCP2", "tcpish"); err == nil {
		t.Errorf("RegisterProtocol() expected filterName conflict error, got nil")
	}
}

func TestRegisterProtocolIdempotent(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProtocol("ip", "Internet Protocol", "ip")
	reg.RegisterProtocol("ip", "Internet Protocol", "ip")
	p, _ := reg.Protocol("ip")
	if p.LongName != "Internet Protocol" {
		t.Errorf("idempotent re-registration changed LongName to %q", p.LongName)
	}
}

func TestRegisterFieldRejectsTypeChange(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProtocol("tcp", "TCP", "tcp")
	if err := reg.RegisterField("tcp.srcport", "Source Port", "", "BASE_DEC", "", "tcp", TypeUint16); err != nil {
		t.Fatalf("RegisterField() error: %v", err)
	}
	if err := reg.RegisterField("tcp.srcport", "Source Port", "", "BASE_DEC", "", "tcp", TypeUint32); err == nil {
		t.Errorf("RegisterField() expected type-change error, got nil")
	}
	f, _ := reg.Field("tcp.srcport")
	if f.Type != TypeUint16 {
		t.Errorf("Type = %v after failed merge, want unchanged TypeUint16", f.Type)
	}
}

func TestRegisterFieldUnknownParent(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterField("x.y", "", "", "", "", "nosuchproto", TypeText); err == nil {
		t.Errorf("RegisterField() expected unknown-parent error, got nil")
	}
}

func TestValueStringLookup(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProtocol("x", "X", "x")
	reg.RegisterField("x.code", "", "", "BASE_DEC", "", "x", TypeUint8)
	reg.RegisterSingle("x.code", 5, "low")
	reg.RegisterRange("x.code", 10, 20, "mid")

	f, _ := reg.Field("x.code")
	if label, ok := f.LookupSingle(5); !ok || label != "low" {
		t.Errorf("LookupSingle(5) = %q, %v; want \"low\", true", label, ok)
	}
	if label, ok := f.LookupRange(12); !ok || label != "mid" {
		t.Errorf("LookupRange(12) = %q, %v; want \"mid\", true", label, ok)
	}
	if _, ok := f.LookupRange(99); ok {
		t.Errorf("LookupRange(99) found a label, want none")
	}
}

func TestValueStringMergeConcatenatesLabels(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProtocol("x", "X", "x")
	reg.RegisterField("x.flag", "", "", "", "", "x", TypeBoolean)
	reg.RegisterBoolean("x.flag", "set", "clear")
	reg.RegisterBoolean("x.flag", "on", "clear")

	f, _ := reg.Field("x.flag")
	trueLabel, falseLabel, ok := f.LookupBoolean()
	if !ok {
		t.Fatalf("LookupBoolean() not found")
	}
	if trueLabel != "set / on" {
		t.Errorf("trueLabel = %q, want %q", trueLabel, "set / on")
	}
	if falseLabel != "clear" {
		t.Errorf("falseLabel = %q, want %q", falseLabel, "clear")
	}
}

func TestParseFieldTypeUnknownFails(t *testing.T) {
	if _, ok := ParseFieldType("FT_NUM_TYPES"); ok {
		t.Errorf("ParseFieldType(FT_NUM_TYPES) ok = true, want false")
	}
	if _, ok := ParseFieldType("FT_NOT_A_REAL_TOKEN"); ok {
		t.Errorf("ParseFieldType(unknown) ok = true, want false")
	}
	if ft, ok := ParseFieldType("FT_UINT64"); !ok || ft != TypeUint64 {
		t.Errorf("ParseFieldType(FT_UINT64) = %v, %v; want TypeUint64, true", ft, ok)
	}
}

func TestParseInt(t *testing.T) {
	cases := map[string]int64{
		"0x1F": 31,
		"&h1F": 31,
		"&H1f": 31,
		"31":   31,
		"-5":   -5,
	}
	for in, want := range cases {
		got, err := ParseInt(in)
		if err != nil {
			t.Errorf("ParseInt(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseInt(%q) = %d, want %d", in, got, want)
		}
	}
}
