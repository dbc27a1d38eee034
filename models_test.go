package dbx2o

import "testing"

func TestPresetEndpoints_DefaultFirst(t *testing.T) {
	endpoints := PresetEndpoints()
	if len(endpoints) == 0 {
		t.Fatalf("PresetEndpoints() should not be empty")
	}

	if endpoints[0].ID != DefaultEndpointFullID {
		t.Fatalf("first endpoint = %q, want %q", endpoints[0].ID, DefaultEndpointFullID)
	}
}

func TestDefaultEndpoint_IsFoundation(t *testing.T) {
	if !IsFoundationEndpointID(DefaultEndpointID) {
		t.Fatalf("default endpoint id %q should be a foundation endpoint", DefaultEndpointID)
	}
	if !IsFoundationEndpointID(DefaultEndpointFullID) {
		t.Fatalf("default endpoint full id %q should be a foundation endpoint", DefaultEndpointFullID)
	}
}

func TestNormalizeEndpointID(t *testing.T) {
	cases := map[string]string{
		"databricks/databricks-claude-sonnet-4": "databricks-claude-sonnet-4",
		"databricks:my-custom-endpoint":         "my-custom-endpoint",
		"  my-custom-endpoint  ":                "my-custom-endpoint",
		"databricks-gpt-oss-120b":               "databricks-gpt-oss-120b",
	}
	for in, want := range cases {
		if got := NormalizeEndpointID(in); got != want {
			t.Fatalf("NormalizeEndpointID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEndpointBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://dbc-a1b2.cloud.databricks.com":                    "https://dbc-a1b2.cloud.databricks.com/serving-endpoints",
		"https://dbc-a1b2.cloud.databricks.com/":                   "https://dbc-a1b2.cloud.databricks.com/serving-endpoints",
		"dbc-a1b2.cloud.databricks.com":                            "https://dbc-a1b2.cloud.databricks.com/serving-endpoints",
		"https://dbc-a1b2.cloud.databricks.com/serving-endpoints":  "https://dbc-a1b2.cloud.databricks.com/serving-endpoints",
		"https://dbc-a1b2.cloud.databricks.com/serving-endpoints/": "https://dbc-a1b2.cloud.databricks.com/serving-endpoints",
		"": "",
	}
	for in, want := range cases {
		if got := EndpointBaseURL(in); got != want {
			t.Fatalf("EndpointBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}
