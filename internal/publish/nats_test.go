package publish

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"flightsheet/internal/flight"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		city string
		want string
	}{
		{"Москва", "flights.Москва"},
		{"Ростов-на-Дону", "flights.Ростов-на-Дону"},
		{"Центр ЕС ОрВД", "flights.Центр_ЕС_ОрВД"},
		{"a.b*c>d", "flights.a_b_c_d"},
		{"", "flights.unknown"},
	}
	for _, tt := range tests {
		if got := Subject("flights", tt.city); got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.city, got, tt.want)
		}
	}
}

func TestPublisher(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("No NATS server available")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Skipf("No NATS server available: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("flights-test.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := New(nc, "flights-test")
	importID := uuid.New()
	recs := []flight.Record{{FlightID: "A1", City: "Москва"}, {FlightID: "B2", City: "Самара"}}
	if err := p.Write(context.Background(), importID, recs); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, want := range recs {
		msg, err := sub.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatalf("NextMsg: %v", err)
		}
		if msg.Subject != Subject("flights-test", want.City) {
			t.Errorf("subject = %q", msg.Subject)
		}
		var got Message
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ImportID != importID || got.Flight.FlightID != want.FlightID {
			t.Errorf("message = %+v", got)
		}
	}
}
