package evm

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEventTopic_Transfer(t *testing.T) {
	got := EventTopic("Transfer(address,address,uint256)")
	want := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if spaced := EventTopic("Transfer(address, address, uint256)"); spaced != want {
		t.Errorf("expected whitespace to be ignored, got %s", spaced)
	}
}

func TestEncodeWithSignature_NoArgs(t *testing.T) {
	data, err := EncodeWithSignature("decimals()")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hex.EncodeToString(data); got != "313ce567" {
		t.Errorf("expected selector 313ce567, got %s", got)
	}
}

func TestEncodeWithSignature_WithArgs(t *testing.T) {
	holder := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	data, err := EncodeWithSignature("balanceOf(address)", holder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 4+32 {
		t.Fatalf("expected 36 bytes, got %d", len(data))
	}
	got := hex.EncodeToString(data)
	if !strings.HasPrefix(got, "70a08231") {
		t.Errorf("unexpected selector in %s", got)
	}
	if !strings.HasSuffix(got, "5aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Errorf("expected left-padded address, got %s", got)
	}

	data, err = EncodeWithSignature("transfer(address,uint256)", holder, big.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 4+64 {
		t.Errorf("expected 68 bytes, got %d", len(data))
	}
}

func TestEncodeWithSignature_Errors(t *testing.T) {
	if _, err := EncodeWithSignature("balanceOf(address)"); err == nil {
		t.Error("expected argument count error")
	}
	if _, err := EncodeWithSignature("broken"); err == nil {
		t.Error("expected malformed signature error")
	}
	if _, err := EncodeWithSignature("f((uint256,address))", nil); err == nil {
		t.Error("expected tuple error")
	}
}

func TestToSigned256(t *testing.T) {
	pow2 := func(n uint) *big.Int { return new(big.Int).Lsh(big.NewInt(1), n) }
	add := func(a *big.Int, b int64) *big.Int { return new(big.Int).Add(a, big.NewInt(b)) }

	tests := []struct {
		name string
		in   *big.Int
		want *big.Int
	}{
		{"small positive", big.NewInt(5), big.NewInt(5)},
		{"zero", big.NewInt(0), big.NewInt(0)},
		{"max uint256 is -1", add(pow2(256), -1), big.NewInt(-1)},
		{"2^255 is min int256", pow2(255), new(big.Int).Neg(pow2(255))},
		{"2^255-1 stays max int256", add(pow2(255), -1), add(pow2(255), -1)},
		{"wider than 256 bits is truncated", add(pow2(257), 1), big.NewInt(1)},
		{"2^256 wraps to zero", pow2(256), big.NewInt(0)},
		{"negative in range is kept", big.NewInt(-7), big.NewInt(-7)},
		{"negative below min int256 wraps", add(new(big.Int).Neg(pow2(255)), -1), add(pow2(255), -1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := new(big.Int).Set(tt.in)
			if got := ToSigned256(in); got.Cmp(tt.want) != 0 {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if in.Cmp(tt.in) != 0 {
				t.Error("input must not be modified")
			}
		})
	}
}

func TestChecksumAddress(t *testing.T) {
	got, err := ChecksumAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("unexpected checksum: %s", got)
	}

	for _, bad := range []string{"", "0x123", "not-an-address", "0xzzaeb6053f3e94c9b9a09f33669435e7ef1beaed"} {
		if _, err := ChecksumAddress(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestWord(t *testing.T) {
	data := "0x" + strings.Repeat("0", 63) + "5" + strings.Repeat("f", 64)

	w0, err := Word(data, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w0.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("expected 5, got %s", w0)
	}

	w1, err := Word(data[2:], 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ToSigned256(w1); got.Cmp(big.NewInt(-1)) != 0 {
		t.Errorf("expected -1 after sign conversion, got %s", got)
	}

	if _, err := Word(data, 2); err == nil {
		t.Error("expected out of range error")
	}
}

func TestTopicAddress(t *testing.T) {
	topic := "0000000000000000000000005aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	if got := TopicAddress(topic); got != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("unexpected address %s", got)
	}
}
