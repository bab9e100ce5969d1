package registry

import "testing"

func TestLoadEmbeddedSources(t *testing.T) {
	reg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := len(reg.All()); got != 6 {
		t.Fatalf("expected 6 sources, got %d", got)
	}

	if src, ok := reg.ByCode("rf_minsport"); !ok {
		t.Fatal("rf_minsport missing")
	} else if src.Active {
		t.Fatal("rf_minsport must be inactive")
	} else if src.Detect.JSVar != "$obj" {
		t.Fatalf("rf_minsport js_var = %q", src.Detect.JSVar)
	}

	for _, code := range []string{"moskva_tstisk", "spb_kfkis", "krasnodar_minsport"} {
		if _, ok := reg.ByCode(code); !ok {
			t.Errorf("source %s missing", code)
		}
	}
}

func TestAllowlistFromConfiguredHosts(t *testing.T) {
	reg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for _, host := range []string{"www.mos.ru", "mst.mosreg.ru", "kfis.gov.spb.ru", "minsport.krasnodar.ru", "msrfinfo.ru"} {
		if !reg.HostAllowed(host) {
			t.Errorf("host %s should be allowed", host)
		}
	}

	if reg.HostAllowed("evil.com") {
		t.Error("evil.com must not be allowed")
	}
}

func TestRegisterHostIsImmediate(t *testing.T) {
	reg, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if reg.HostAllowed("sport.example.org") {
		t.Fatal("host allowed before registration")
	}
	reg.RegisterHost("sport.example.org")
	if !reg.HostAllowed("sport.example.org") {
		t.Fatal("host not allowed after registration")
	}
}

func TestActiveSourceValidation(t *testing.T) {
	_, err := New([]SourceConfig{{
		Code:   "broken",
		Active: true,
	}})
	if err == nil {
		t.Fatal("expected error for active source without list URLs")
	}

	_, err = New([]SourceConfig{{
		Code:   "broken_json",
		Active: true,
		Detect: DetectConfig{ListURLs: []string{"https://x.example/a"}, SourceType: "json_embed"},
	}})
	if err == nil {
		t.Fatal("expected error for json_embed source without js_var")
	}
}

func TestDefaultsApplied(t *testing.T) {
	reg, err := New([]SourceConfig{{
		Code:   "plain",
		Active: true,
		Detect: DetectConfig{ListURLs: []string{"https://x.example/docs"}},
	}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src, _ := reg.ByCode("plain")
	if src.Detect.LinkRegex != defaultLinkRegex {
		t.Errorf("default link regex not applied: %q", src.Detect.LinkRegex)
	}
	if src.Detect.MaxPages != 1 || src.Download.MaxRetries != 3 || src.Download.TimeoutSeconds != 60 {
		t.Errorf("defaults not applied: %+v", src)
	}
}
