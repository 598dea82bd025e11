package common

import "testing"

// Fuzz targets mirrored from original_source's
// creto-common/fuzz/fuzz_targets/identity_parse.rs.

func FuzzParseAgentId(f *testing.F) {
	f.Add(NewAgentId().String())
	f.Add("agent:not-a-uuid")
	f.Add("")
	f.Add("agent:")

	f.Fuzz(func(t *testing.T, s string) {
		id, err := ParseAgentId(s)
		if err != nil {
			return
		}
		if _, err := ParseAgentId(id.String()); err != nil {
			t.Fatalf("round-trip of parsed id %q failed: %v", id.String(), err)
		}
	})
}

func FuzzParseUserId(f *testing.F) {
	f.Add(NewUserId().String())
	f.Add("user:not-a-uuid")
	f.Add("")

	f.Fuzz(func(t *testing.T, s string) {
		id, err := ParseUserId(s)
		if err != nil {
			return
		}
		if _, err := ParseUserId(id.String()); err != nil {
			t.Fatalf("round-trip of parsed id %q failed: %v", id.String(), err)
		}
	})
}

func FuzzParseOrganizationId(f *testing.F) {
	f.Add(NewOrganizationId().String())
	f.Add("org:not-a-uuid")
	f.Add("")

	f.Fuzz(func(t *testing.T, s string) {
		id, err := ParseOrganizationId(s)
		if err != nil {
			return
		}
		if _, err := ParseOrganizationId(id.String()); err != nil {
			t.Fatalf("round-trip of parsed id %q failed: %v", id.String(), err)
		}
	})
}
