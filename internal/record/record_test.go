package record

import (
	"math"
	"testing"
)

func TestProbeString(t *testing.T) {
	p := Probe{Section: "soma", X: 0.5, Variable: Voltage}
	if p.String() != "soma(0.5).v" {
		t.Errorf("expected soma(0.5).v, got %s", p.String())
	}
}

func TestSet_Sample(t *testing.T) {
	var s Set
	v := &Trace{Label: "v", Probe: Probe{Variable: Voltage}, Segment: 0}
	m := &Trace{Label: "m", Probe: Probe{Variable: GateM}, Segment: 1}
	s.Add(v)
	s.Add(m)

	read := func(seg int, variable string) float64 {
		if variable == Voltage {
			return -65 + float64(seg)
		}
		return 0.05 + float64(seg)
	}
	s.Sample(0, read)
	s.Sample(0.025, read)

	if v.Len() != 2 || m.Len() != 2 {
		t.Fatalf("expected 2 samples each, got %d and %d", v.Len(), m.Len())
	}
	if v.Y[0] != -65 || m.Y[1] != 1.05 {
		t.Errorf("unexpected samples v=%v m=%v", v.Y, m.Y)
	}
	tl, yl, ok := v.Last()
	if !ok || tl != 0.025 || yl != -65 {
		t.Errorf("unexpected last sample (%g, %g, %v)", tl, yl, ok)
	}

	if _, ok := s.Find("m"); !ok {
		t.Error("expected to find trace m")
	}
	if _, ok := s.Find("x"); ok {
		t.Error("did not expect trace x")
	}

	header, rows := s.Table()
	if len(header) != 3 || header[0] != "t" || header[2] != "m" {
		t.Errorf("unexpected header %v", header)
	}
	if len(rows) != 2 || rows[1][0] != 0.025 {
		t.Errorf("unexpected rows %v", rows)
	}

	s.Reset()
	if v.Len() != 0 {
		t.Errorf("expected empty trace after reset, got %d", v.Len())
	}
	if _, _, ok := v.Last(); ok {
		t.Error("expected no last sample after reset")
	}
}

func TestSet_TableLateTrace(t *testing.T) {
	var s Set
	v := &Trace{Label: "v", Probe: Probe{Variable: Voltage}}
	s.Add(v)
	read := func(int, string) float64 { return -65 }
	for i := range 4 {
		s.Sample(float64(i)*0.025, read)
	}
	m := &Trace{Label: "m", Probe: Probe{Variable: GateM}}
	s.Add(m)
	s.Sample(0.1, func(_ int, variable string) float64 {
		if variable == GateM {
			return 0.05
		}
		return -64
	})

	header, rows := s.Table()
	if len(header) != 3 {
		t.Fatalf("unexpected header %v", header)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 3 {
			t.Fatalf("row %d: expected 3 columns, got %v", i, row)
		}
	}
	for i := range 4 {
		if !math.IsNaN(rows[i][2]) {
			t.Errorf("row %d: expected no m sample, got %g", i, rows[i][2])
		}
	}
	if rows[4][0] != 0.1 || rows[4][1] != -64 || rows[4][2] != 0.05 {
		t.Errorf("expected the m sample aligned at t=0.1, got %v", rows[4])
	}
}

func TestSet_EmptyTable(t *testing.T) {
	var s Set
	header, rows := s.Table()
	if header != nil || rows != nil {
		t.Error("expected nil table for an empty set")
	}
}
