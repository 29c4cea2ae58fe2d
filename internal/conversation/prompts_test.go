package conversation

import (
	"strings"
	"testing"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/rail"
)

func TestMenusChunking(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		menus int
	}{
		{"empty", 0, 0},
		{"one menu", 25, 1},
		{"two menus", 26, 2},
		{"all srt stations", len(Stations(rail.SRT)), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := make([]Option, tt.n)
			for i := range opts {
				opts[i] = Option{Label: string(rune('A' + i%26)), Value: string(rune('a' + i%26))}
			}
			menus := Menus("Station", opts)
			if len(menus) != tt.menus {
				t.Fatalf("Menus() = %d menus, want %d", len(menus), tt.menus)
			}
			total := 0
			for _, m := range menus {
				if len(m.Options) > MaxOptions {
					t.Fatalf("menu has %d options", len(m.Options))
				}
				total += len(m.Options)
			}
			if total != tt.n {
				t.Fatalf("Menus() kept %d options, want %d", total, tt.n)
			}
		})
	}
}

func TestParsePassengers(t *testing.T) {
	tests := []struct {
		name    string
		in      map[string]string
		want    booking.PassengerInfo
		wantErr bool
	}{
		{"adults only", map[string]string{"adults": "2"}, booking.PassengerInfo{Adults: 2}, false},
		{"blank is zero", map[string]string{"adults": " ", "children": "1"}, booking.PassengerInfo{Children: 1}, false},
		{"mixed", map[string]string{"adults": "1", "children": "1", "seniors": "2"}, booking.PassengerInfo{Adults: 1, Children: 1, Seniors: 2}, false},
		{"nobody", map[string]string{}, booking.PassengerInfo{}, true},
		{"not a number", map[string]string{"adults": "two"}, booking.PassengerInfo{}, true},
		{"too many", map[string]string{"adults": "5", "seniors": "5"}, booking.PassengerInfo{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePassengers(tt.in)
			if tt.wantErr {
				if !booking.IsValidation(err) {
					t.Fatalf("parsePassengers() error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePassengers() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("parsePassengers() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDateOptions(t *testing.T) {
	opts := dateOptions(testToday)
	if len(opts) != bookableDays {
		t.Fatalf("dateOptions() = %d options, want %d", len(opts), bookableDays)
	}
	if opts[0].Value != "20261017" {
		t.Fatalf("first date = %s", opts[0].Value)
	}
	if opts[24].Value != "20261110" {
		t.Fatalf("last date = %s", opts[24].Value)
	}
	if !strings.HasPrefix(opts[0].Label, "2026/10/17") {
		t.Fatalf("label = %s", opts[0].Label)
	}
}

func TestTimeOptions(t *testing.T) {
	opts := timeOptions()
	if len(opts) != 24 {
		t.Fatalf("timeOptions() = %d options", len(opts))
	}
	if opts[0].Value != "000000" || opts[23].Value != "230000" || opts[9].Label != "09:00~" {
		t.Fatalf("timeOptions() = %v", opts)
	}
}

func TestTrainPromptCapsOptions(t *testing.T) {
	trains := make([]rail.Train, 30)
	for i := range trains {
		trains[i] = rail.Train{Name: "KTX", Number: "101", DepTime: "080000", ArrTime: "104500", GeneralSeat: true}
	}
	p := trainPrompt(trains)
	if n := len(p.Menus[0].Options); n != MaxOptions || p.MaxValues != MaxOptions {
		t.Fatalf("trainPrompt() = %d options, max %d", n, p.MaxValues)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("일반실 매진", 3); got != "일반실" {
		t.Fatalf("truncate() = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate() = %q", got)
	}
}

func TestParseIndexes(t *testing.T) {
	got, err := parseIndexes([]string{"2", "0"})
	if err != nil {
		t.Fatalf("parseIndexes() error = %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 0 {
		t.Fatalf("parseIndexes() = %v, want selection order kept", got)
	}
	for _, in := range [][]string{nil, {"x"}, {"-1"}} {
		if _, err := parseIndexes(in); !booking.IsValidation(err) {
			t.Fatalf("parseIndexes(%v) error = %v, want validation error", in, err)
		}
	}
}

func TestIsCancelWord(t *testing.T) {
	for _, in := range []string{"cancel", " CANCEL ", "종료"} {
		if !IsCancelWord(in) {
			t.Fatalf("IsCancelWord(%q) = false", in)
		}
	}
	for _, in := range []string{"", "cancelled", "stop"} {
		if IsCancelWord(in) {
			t.Fatalf("IsCancelWord(%q) = true", in)
		}
	}
}

func TestFavoritesFilteredByProvider(t *testing.T) {
	if !servesStation(rail.SRT, "수서") || servesStation(rail.SRT, "서울") {
		t.Fatalf("SRT station set is wrong")
	}
	if !servesStation(rail.KTX, "서울") || servesStation(rail.KTX, "수서") {
		t.Fatalf("KTX station set is wrong")
	}
}

func TestSummaryMessage(t *testing.T) {
	out := booking.NewSession(1, 1, "o", "c", rail.SRT, nil)
	out.Departure, out.Arrival, out.Date, out.Times = "수서", "부산", "20261020", []string{"080000"}
	ret := out.ReturnLeg(2, nil)
	ret.Date, ret.Times = "20261022", []string{"170000"}
	m := SummaryMessage(out, ret)
	var names []string
	for _, f := range m.Fields {
		names = append(names, f.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "Return Route") || !strings.Contains(joined, "Passengers") {
		t.Fatalf("SummaryMessage() fields = %s", joined)
	}
	if m.Fields[4].Value != "부산 → 수서" {
		t.Fatalf("return route = %s", m.Fields[4].Value)
	}
}
