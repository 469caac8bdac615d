package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestServerExposesMetrics(t *testing.T) {
	RecordsTotal.WithLabelValues("test", StageRead).Inc()
	FieldChangesTotal.WithLabelValues("devnum").Add(2)

	s := NewServer("127.0.0.1:0", "")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`usbrevue_records_total{command="test",stage="read"}`,
		`usbrevue_field_changes_total{field="devnum"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics output missing %s", want)
		}
	}
}

func TestServerBindError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "/m")
	if err := s.Start(context.Background()); err == nil {
		s.Stop(context.Background())
		t.Fatal("Expected bind error, got nil")
	}
	if s.Addr() != "" {
		t.Errorf("Expected empty address after failed start, got %q", s.Addr())
	}
}

func TestStopBeforeStart(t *testing.T) {
	if err := NewServer(":0", "").Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start returned %v", err)
	}
}
