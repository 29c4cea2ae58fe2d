package rail

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		provider Provider
		msg      string
		want     Kind
	}{
		{SRT, "정상적인 경로로 접근 부탁드립니다.", KindBotDetected},
		{SRT, "로그인 후 사용하십시오.", KindSessionExpired},
		{SRT, "잔여석없음", KindSoldOut},
		{SRT, "사용자가 많아 접속이 원활하지 않습니다", KindOverloaded},
		{SRT, "예약대기 접수가 마감되었습니다", KindStandbyClosed},
		{SRT, "예약대기자한도수초과", KindStandbyFull},
		{SRT, "카드 승인 실패", KindOther},
		{KTX, "Sold out", KindSoldOut},
		{KTX, "잔여석없음", KindSoldOut},
		{KTX, "예약대기자한도수초과", KindStandbyFull},
		{KTX, "로그인 후 사용하십시오.", KindOther},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.provider, tt.msg), func(t *testing.T) {
			if got := Classify(tt.provider, tt.msg); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindTransient(t *testing.T) {
	transient := map[Kind]bool{
		KindSoldOut: true, KindOverloaded: true, KindStandbyClosed: true, KindStandbyFull: true,
		KindBotDetected: false, KindSessionExpired: false, KindOther: false,
	}
	for k, want := range transient {
		if got := k.Transient(); got != want {
			t.Errorf("%v.Transient() = %v, want %v", k, got, want)
		}
	}
}

func TestAsError(t *testing.T) {
	err := fmt.Errorf("search: %w", NewError(SRT, "잔여석없음"))
	re, ok := AsError(err)
	if !ok {
		t.Fatal("AsError() ok = false, want true")
	}
	if re.Kind != KindSoldOut {
		t.Errorf("Kind = %v, want %v", re.Kind, KindSoldOut)
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError(plain) ok = true, want false")
	}
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{"srt": SRT, " KTX ": KTX} {
		got, err := ParseProvider(in)
		if err != nil {
			t.Fatalf("ParseProvider(%q) error = %v", in, err)
		}
		if got != want {
			t.Errorf("ParseProvider(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseProvider("itx"); err == nil {
		t.Error("ParseProvider(itx) expected error")
	}
}

type stubDialer struct{ user string }

func (d *stubDialer) Login(ctx context.Context, user, pass string) (Client, error) {
	d.user = user
	return nil, ErrAuth
}

func TestRegistryLogin(t *testing.T) {
	r := NewRegistry()
	d := &stubDialer{}
	r.Register(SRT, d)

	if _, err := r.Login(context.Background(), SRT, "me", "pw"); !errors.Is(err, ErrAuth) {
		t.Errorf("Login(SRT) error = %v, want ErrAuth", err)
	}
	if d.user != "me" {
		t.Errorf("dialer user = %q, want me", d.user)
	}
	if _, err := r.Login(context.Background(), KTX, "me", "pw"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Login(KTX) error = %v, want ErrUnknownProvider", err)
	}
	if got := r.Providers(); len(got) != 1 || got[0] != SRT {
		t.Errorf("Providers() = %v, want [SRT]", got)
	}
}
