package diag_test

import (
	"sync"
	"testing"

	"github.com/blockspacer/spmdfy/internal/diag"
	"github.com/blockspacer/spmdfy/internal/source"
)

func TestCodeID(t *testing.T) {
	cases := map[diag.Code]string{
		diag.ChainBroken:               "SPM1002",
		diag.ChainUnrecognizedBoundary: "SPM1003",
		diag.InputUnsupportedConstruct: "SPM2002",
		diag.IOLoadFileError:           "IO4001",
		diag.ObsTimings:                "OBS6001",
		diag.UnknownCode:               "E0000",
	}
	for code, want := range cases {
		if got := code.ID(); got != want {
			t.Errorf("%d.ID() = %q, want %q", code, got, want)
		}
	}
	if got := diag.Code(9999).Title(); got != "Unknown error" {
		t.Errorf("unknown title = %q", got)
	}
}

func TestBagLimitAndConcurrency(t *testing.T) {
	bag := diag.NewBag(10)
	r := diag.BagReporter{Bag: bag}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			diag.ReportWarning(r, diag.InputUnsupportedConstruct, source.Span{}, "skipped").Emit()
		}()
	}
	wg.Wait()

	if bag.Len() != 10 {
		t.Fatalf("Len = %d, want 10", bag.Len())
	}
	if bag.HasErrors() {
		t.Error("warnings must not count as errors")
	}
	if !bag.HasWarnings() {
		t.Error("HasWarnings = false")
	}
}

func TestReportBuilderEmitsOnce(t *testing.T) {
	bag := diag.NewBag(4)
	b := diag.ReportError(diag.BagReporter{Bag: bag}, diag.ChainBroken, source.Span{}, "missing successor").
		WithSubject("saxpy")
	b.Emit()
	b.Emit()

	items := bag.Items()
	if len(items) != 1 {
		t.Fatalf("emitted %d diagnostics, want 1", len(items))
	}
	if items[0].Subject != "saxpy" || items[0].Severity != diag.SevError {
		t.Errorf("unexpected diagnostic %+v", items[0])
	}
}

func TestDedupReporter(t *testing.T) {
	bag := diag.NewBag(8)
	r := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	d := diag.NewError(diag.ChainInvalid, source.Span{Start: 1, End: 2}, "cycle")
	r.Report(d)
	r.Report(d)
	r.Report(d.WithNote(source.Span{}, "ignored for dedup"))
	if bag.Len() != 1 {
		t.Fatalf("Len = %d, want 1", bag.Len())
	}
}

func TestFormatShort(t *testing.T) {
	fs := source.NewFileSet()
	id := fs.AddVirtual("k.cu", []byte("__global__ void k() {\n  __syncthreads();\n}\n"))

	diags := []diag.Diagnostic{
		diag.NewError(diag.ChainUnrecognizedBoundary, source.Span{File: id, Start: 24, End: 39}, "walk stopped at scope-exit").
			WithSubject("k").
			WithNote(source.Span{File: id, Start: 0, End: 10}, "kernel declared here"),
		diag.NewWarning(diag.InputUnsupportedConstruct, source.Span{File: 7}, "goto\nstatement"),
	}

	want := "warning SPM2002 <unknown>:0:0 goto statement\n" +
		"note SPM1003 k.cu:1:1 kernel declared here\n" +
		"error SPM1003 k.cu:2:3 k: walk stopped at scope-exit"
	if got := diag.FormatShort(diags, fs, true); got != want {
		t.Fatalf("FormatShort mismatch:\nwant:\n%s\n\ngot:\n%s", want, got)
	}
}

func TestBagSort(t *testing.T) {
	bag := diag.NewBag(10)
	bag.Add(diag.NewWarning(diag.InputUnsupportedConstruct, source.Span{Start: 20, End: 25}, "late"))
	bag.Add(diag.NewWarning(diag.InputUnsupportedConstruct, source.Span{Start: 5, End: 8}, "early warning"))
	bag.Add(diag.NewError(diag.ChainBroken, source.Span{Start: 5, End: 8}, "early error"))
	bag.Sort()

	var got []string
	for _, d := range bag.Items() {
		got = append(got, d.Message)
	}
	want := []string{"early error", "early warning", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted = %q, want %q", got, want)
		}
	}
	if !bag.HasWarnings() || !bag.HasErrors() {
		t.Fatalf("severity queries disagree with contents")
	}
}

func TestSeverityString(t *testing.T) {
	cases := map[diag.Severity]string{
		diag.SevNote:     "note",
		diag.SevWarning:  "warning",
		diag.SevError:    "error",
		diag.Severity(9): "severity(9)",
	}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Errorf("Severity(%d).String() = %q, want %q", sev, got, want)
		}
	}
	if !(diag.SevError > diag.SevWarning && diag.SevWarning > diag.SevNote) {
		t.Fatal("severities must order note < warning < error")
	}
}
