package fixcodec

import (
	"testing"
	"time"
)

func buildLogon(t *testing.T) []byte {
	t.Helper()
	ts := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	return Encode(MsgTypeLogon, 1, "CLIENT1", "EXCHANGE", ts, []Field{
		{Tag: TagHeartBtInt, Value: "30"},
	})
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := buildLogon(t)
	msg := Decode(raw)

	if msg.MsgType() != MsgTypeLogon {
		t.Fatalf("MsgType() = %q, want %q", msg.MsgType(), MsgTypeLogon)
	}
	if v := msg.GetString(TagSenderCompID); v != "CLIENT1" {
		t.Fatalf("SenderCompID = %q, want CLIENT1", v)
	}
	if v := msg.GetString(TagHeartBtInt); v != "30" {
		t.Fatalf("HeartBtInt = %q, want 30", v)
	}
	if err := Validate(msg); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestEncodeBeginsWithBeginString(t *testing.T) {
	raw := buildLogon(t)
	if string(raw[:9]) != "8=FIX.4.2" {
		t.Fatalf("raw does not start with 8=FIX.4.2: %q", raw[:9])
	}
}

func TestEncodeEndsWithChecksum(t *testing.T) {
	raw := buildLogon(t)
	if raw[len(raw)-1] != SOH {
		t.Fatalf("raw does not end with SOH")
	}
	if !VerifyChecksum(raw) {
		t.Fatalf("VerifyChecksum() = false, want true")
	}
}

func TestChecksumIsThreeDigits(t *testing.T) {
	sum := Checksum([]byte("8=FIX.4.2\x019=5\x01"))
	if len(sum) != 3 {
		t.Fatalf("Checksum() = %q, want 3 digits", sum)
	}
}

func TestVerifyChecksumDetectsTamper(t *testing.T) {
	raw := buildLogon(t)
	tampered := append([]byte(nil), raw...)
	// flip a byte inside the body, leaving the checksum field untouched.
	for i, b := range tampered {
		if b == 'C' {
			tampered[i] = 'X'
			break
		}
	}
	if VerifyChecksum(tampered) {
		t.Fatalf("VerifyChecksum() = true for tampered message, want false")
	}
}

func TestMissingHeaderTags(t *testing.T) {
	msg := Decode([]byte("35=A\x0149=CLIENT1\x01"))
	missing := MissingHeaderTags(msg)
	if len(missing) == 0 {
		t.Fatalf("MissingHeaderTags() = empty, want several")
	}
}

func TestValidateRejectsUnknownMessageType(t *testing.T) {
	ts := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	raw := Encode("Z", 1, "CLIENT1", "EXCHANGE", ts, nil)
	msg := Decode(raw)
	err := Validate(msg)
	if err == nil {
		t.Fatalf("Validate() = nil, want unknown message type error")
	}
	fixErr, ok := err.(*Error)
	if !ok || fixErr.Kind != KindUnknownMessageType {
		t.Fatalf("Validate() = %v, want KindUnknownMessageType", err)
	}
}

func TestDecodeIgnoresFieldsWithoutEquals(t *testing.T) {
	msg := Decode([]byte("8=FIX.4.2\x01garbage\x0135=A\x01"))
	if msg.MsgType() != MsgTypeLogon {
		t.Fatalf("MsgType() = %q, want %q", msg.MsgType(), MsgTypeLogon)
	}
}

func TestDecodeDuplicateTagKeepsLast(t *testing.T) {
	msg := Decode([]byte("35=A\x0135=D\x01"))
	if msg.MsgType() != MsgTypeNewOrderSingle {
		t.Fatalf("MsgType() = %q, want last occurrence %q", msg.MsgType(), MsgTypeNewOrderSingle)
	}
}

func TestDecodeEmptyMessage(t *testing.T) {
	msg := Decode([]byte(""))
	if len(msg.Fields) != 0 {
		t.Fatalf("Fields = %v, want empty", msg.Fields)
	}
}

func TestEncodeDecodePreservesDecimalPrice(t *testing.T) {
	ts := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	raw := Encode(MsgTypeNewOrderSingle, 2, "CLIENT1", "EXCHANGE", ts, []Field{
		{Tag: TagSymbol, Value: "AAPL"},
		{Tag: TagPrice, Value: "123.4567"},
	})
	msg := Decode(raw)
	if v := msg.GetString(TagPrice); v != "123.4567" {
		t.Fatalf("Price = %q, want 123.4567", v)
	}
}

func TestEncodeDecodeSpecialCharacterInSymbol(t *testing.T) {
	ts := time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)
	raw := Encode(MsgTypeNewOrderSingle, 3, "CLIENT1", "EXCHANGE", ts, []Field{
		{Tag: TagSymbol, Value: "BRK.A"},
	})
	msg := Decode(raw)
	if v := msg.GetString(TagSymbol); v != "BRK.A" {
		t.Fatalf("Symbol = %q, want BRK.A", v)
	}
}
